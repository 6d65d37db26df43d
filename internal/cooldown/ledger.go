// Package cooldown tracks when each (actor, capability) pair may act again.
package cooldown

import (
	"sync"
	"time"

	"github.com/arenahall/lobbyd/internal/domain"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		if c != nil {
			l.clock = c
		}
	}
}

type key struct {
	actor      domain.ParticipantID
	capability domain.CapabilityID
}

// entry is one key's ready time. Its mutex makes check-and-set atomic per
// key without serializing unrelated keys.
type entry struct {
	mu      sync.Mutex
	readyAt time.Time
}

// Ledger maps (actor, capability) to the earliest time of the next use.
// Entries never expire on their own; Reset clears them all.
type Ledger struct {
	clock   Clock
	entries sync.Map // key -> *entry
}

// NewLedger creates an empty ledger on the wall clock.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{clock: systemClock{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryUse permits the use when the key has never been used or its ready time
// has passed, and in that case records now+wait before returning. Two
// concurrent calls for the same key can never both succeed within one wait
// window.
func (l *Ledger) TryUse(actor domain.ParticipantID, capability domain.CapabilityID, wait time.Duration) bool {
	v, _ := l.entries.LoadOrStore(key{actor, capability}, &entry{})
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	now := l.clock.Now()
	if now.Before(e.readyAt) {
		return false
	}
	e.readyAt = now.Add(wait)
	return true
}

// Remaining returns how long until the key may be used again, or 0.
func (l *Ledger) Remaining(actor domain.ParticipantID, capability domain.CapabilityID) time.Duration {
	v, ok := l.entries.Load(key{actor, capability})
	if !ok {
		return 0
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if d := e.readyAt.Sub(l.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// Len returns the number of keys that have ever been used since the last
// Reset.
func (l *Ledger) Len() int {
	n := 0
	l.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Reset forgets every entry.
func (l *Ledger) Reset() {
	l.entries.Clear()
}
