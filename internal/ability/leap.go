package ability

import (
	"time"

	"github.com/arenahall/lobbyd/internal/domain"
)

const (
	// LeapID is the capability id of Leap.
	LeapID domain.CapabilityID = "leap"
	// LeapCooldown is the built-in wait between two leaps.
	LeapCooldown = 8 * time.Second

	leapForward = 1.5
	leapLift    = 1.2
)

// Leap pushes the actor forward and up.
type Leap struct{}

// ID returns LeapID.
func (Leap) ID() domain.CapabilityID { return LeapID }

// Cooldown returns LeapCooldown.
func (Leap) Cooldown() time.Duration { return LeapCooldown }

// Activate scales ctx.Facing forward and sets a fixed upward lift.
func (Leap) Activate(ctx Context) (domain.Effect, error) {
	v := ctx.Facing.Scale(leapForward)
	v.Y = leapLift
	return domain.Effect{
		Capability: LeapID,
		Actor:      ctx.Actor,
		Kind:       "leap",
		Velocity:   v,
		At:         ctx.Now,
	}, nil
}
