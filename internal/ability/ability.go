// Package ability defines cooldown-gated player abilities and the registry
// that arbitrates their use.
package ability

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/arenahall/lobbyd/internal/cooldown"
	"github.com/arenahall/lobbyd/internal/domain"
)

// Context is what an ability knows about the actor at activation time.
type Context struct {
	Actor  domain.ParticipantID
	Facing domain.Vector
	Now    time.Time
}

// Ability is one repeatable, time-gated action.
type Ability interface {
	ID() domain.CapabilityID
	Cooldown() time.Duration
	Activate(ctx Context) (domain.Effect, error)
}

// Registry maps capability ids to abilities and gates every invocation
// through a cooldown ledger.
type Registry struct {
	ledger *cooldown.Ledger

	mu        sync.RWMutex
	abilities map[domain.CapabilityID]Ability
	waits     map[domain.CapabilityID]time.Duration
}

// NewRegistry creates an empty registry backed by ledger.
func NewRegistry(ledger *cooldown.Ledger) *Registry {
	if ledger == nil {
		ledger = cooldown.NewLedger()
	}
	return &Registry{
		ledger:    ledger,
		abilities: make(map[domain.CapabilityID]Ability),
		waits:     make(map[domain.CapabilityID]time.Duration),
	}
}

// Defaults returns a registry holding the built-in abilities.
func Defaults(ledger *cooldown.Ledger) *Registry {
	r := NewRegistry(ledger)
	_ = r.Register(Firespit{})
	_ = r.Register(Leap{})
	return r
}

// Register adds a. Registering the same id twice fails.
func (r *Registry) Register(a Ability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.abilities[a.ID()]; ok {
		return domain.NewEngineError(domain.ErrDuplicateAbility.Code, fmt.Sprintf("capability %q already registered", a.ID()))
	}
	r.abilities[a.ID()] = a
	return nil
}

// SetCooldown overrides the wait of a registered capability.
func (r *Registry) SetCooldown(id domain.CapabilityID, wait time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.abilities[id]; !ok {
		return unknown(id)
	}
	r.waits[id] = wait
	return nil
}

// Cooldown returns the effective wait for id.
func (r *Registry) Cooldown(id domain.CapabilityID) (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.abilities[id]
	if !ok {
		return 0, false
	}
	if w, ok := r.waits[id]; ok {
		return w, true
	}
	return a.Cooldown(), true
}

// IDs lists the registered capabilities in sorted order.
func (r *Registry) IDs() []domain.CapabilityID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.CapabilityID, 0, len(r.abilities))
	for id := range r.abilities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Ledger returns the cooldown ledger backing the registry.
func (r *Registry) Ledger() *cooldown.Ledger {
	return r.ledger
}

// Invoke records the use of id by ctx.Actor and activates the ability. When
// the ledger refuses the use, nothing else happens and ErrCooldownActive is
// returned.
func (r *Registry) Invoke(ctx Context, id domain.CapabilityID) (domain.Effect, error) {
	r.mu.RLock()
	a, ok := r.abilities[id]
	wait, overridden := r.waits[id]
	r.mu.RUnlock()
	if !ok {
		return domain.Effect{}, unknown(id)
	}
	if !overridden {
		wait = a.Cooldown()
	}

	if !r.ledger.TryUse(ctx.Actor, id, wait) {
		remaining := r.ledger.Remaining(ctx.Actor, id)
		return domain.Effect{}, domain.NewEngineError(
			domain.ErrCooldownActive.Code,
			fmt.Sprintf("%s ready in %s", id, remaining.Round(time.Millisecond)),
		)
	}
	if ctx.Now.IsZero() {
		ctx.Now = time.Now()
	}
	return a.Activate(ctx)
}

func unknown(id domain.CapabilityID) error {
	return domain.NewEngineError(domain.ErrUnknownCapability.Code, fmt.Sprintf("unknown capability %q", id))
}
