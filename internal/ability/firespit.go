package ability

import (
	"time"

	"github.com/arenahall/lobbyd/internal/domain"
)

const (
	// FirespitID is the capability id of Firespit.
	FirespitID domain.CapabilityID = "firespit"
	// FirespitCooldown is the built-in wait between two fireballs.
	FirespitCooldown = 3000 * time.Millisecond
	// FirespitSpeed multiplies the unit facing vector.
	FirespitSpeed = 10
)

// Firespit launches a fireball along the actor's facing.
type Firespit struct{}

// ID returns FirespitID.
func (Firespit) ID() domain.CapabilityID { return FirespitID }

// Cooldown returns FirespitCooldown.
func (Firespit) Cooldown() time.Duration { return FirespitCooldown }

// Activate fires a fireball at FirespitSpeed along ctx.Facing.
func (Firespit) Activate(ctx Context) (domain.Effect, error) {
	return domain.Effect{
		Capability: FirespitID,
		Actor:      ctx.Actor,
		Kind:       "fireball",
		Velocity:   ctx.Facing.Scale(FirespitSpeed),
		At:         ctx.Now,
	}, nil
}
