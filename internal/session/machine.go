// Package session holds the authoritative lifecycle phase and membership of
// the single running session.
package session

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/arenahall/lobbyd/internal/domain"
)

// validTransitions defines the legal phase transitions.
// Each key is a source phase, and the value is the set of valid target phases.
var validTransitions = map[domain.Phase]map[domain.Phase]bool{
	domain.PhaseLoading:    {domain.PhaseRecruiting: true},
	domain.PhaseRecruiting: {domain.PhasePreparing: true},
	domain.PhasePreparing:  {domain.PhaseStarting: true},
	domain.PhaseStarting:   {domain.PhasePlaying: true},
	domain.PhasePlaying:    {domain.PhaseEnding: true},
	domain.PhaseEnding:     {domain.PhaseRecruiting: true}, // reset for the next round
}

// IsValidTransition checks if a phase transition is legal.
func IsValidTransition(from, to domain.Phase) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Snapshot is a consistent copy of the machine state.
type Snapshot struct {
	Phase        domain.Phase           `json:"phase"`
	Participants []domain.ParticipantID `json:"participants"`
	Observers    []domain.ParticipantID `json:"observers"`
}

// Machine is the session state machine. Phase, participants and observers
// share one lock so that callers observe them as a single consistent value.
type Machine struct {
	mu  sync.RWMutex
	st  state
	log *slog.Logger
}

type state struct {
	phase        domain.Phase
	participants map[domain.ParticipantID]struct{}
	observers    map[domain.ParticipantID]struct{}
}

// NewMachine creates a machine in the loading phase.
func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		st: state{
			phase:        domain.PhaseLoading,
			participants: make(map[domain.ParticipantID]struct{}),
			observers:    make(map[domain.ParticipantID]struct{}),
		},
		log: logger,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() domain.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.phase
}

// TransitionTo moves the machine to next. Illegal requests are rejected and
// the current phase is retained.
func (m *Machine) TransitionTo(next domain.Phase) error {
	return m.Atomically(func(tx *Tx) error {
		return tx.TransitionTo(next)
	})
}

// AddParticipant registers id as an interactive participant. It reports
// whether id was newly added.
func (m *Machine) AddParticipant(id domain.ParticipantID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&Tx{m: m}).AddParticipant(id)
}

// RemoveParticipant drops id from the participant set. Removing a
// non-member is a no-op and reports false.
func (m *Machine) RemoveParticipant(id domain.ParticipantID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&Tx{m: m}).RemoveParticipant(id)
}

// ParticipantCount returns the number of interactive participants.
func (m *Machine) ParticipantCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.st.participants)
}

// IsParticipant reports whether id is an interactive participant.
func (m *Machine) IsParticipant(id domain.ParticipantID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.st.participants[id]
	return ok
}

// Snapshot returns a copy of the current state with sorted member lists.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return (&Tx{m: m}).Snapshot()
}

// Atomically runs fn while holding the machine lock. Every read and write
// made through tx is linearizable with all other machine operations. fn must
// not block and must not call back into the Machine.
func (m *Machine) Atomically(fn func(tx *Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&Tx{m: m})
}

// Tx exposes the machine operations to code already holding the lock.
type Tx struct {
	m *Machine
}

// Phase returns the current phase.
func (tx *Tx) Phase() domain.Phase {
	return tx.m.st.phase
}

// TransitionTo performs a validated phase change.
func (tx *Tx) TransitionTo(next domain.Phase) error {
	if !next.Valid() {
		return domain.NewEngineError(
			domain.ErrInvalidPhase.Code,
			fmt.Sprintf("unknown phase %q", next),
		)
	}
	from := tx.m.st.phase
	if !IsValidTransition(from, next) {
		tx.m.log.Warn("rejected phase transition", "from", from, "to", next)
		return domain.NewEngineError(
			domain.ErrInvalidTransition.Code,
			fmt.Sprintf("illegal transition %s -> %s", from, next),
		)
	}
	tx.m.st.phase = next
	tx.m.log.Info("phase changed", "from", from, "to", next)
	return nil
}

// AddParticipant registers id as an interactive participant and clears any
// observer registration for it.
func (tx *Tx) AddParticipant(id domain.ParticipantID) bool {
	delete(tx.m.st.observers, id)
	if _, ok := tx.m.st.participants[id]; ok {
		return false
	}
	tx.m.st.participants[id] = struct{}{}
	return true
}

// RemoveParticipant drops id from the participant set.
func (tx *Tx) RemoveParticipant(id domain.ParticipantID) bool {
	if _, ok := tx.m.st.participants[id]; !ok {
		return false
	}
	delete(tx.m.st.participants, id)
	return true
}

// ParticipantCount returns the number of interactive participants.
func (tx *Tx) ParticipantCount() int {
	return len(tx.m.st.participants)
}

// IsParticipant reports whether id is an interactive participant.
func (tx *Tx) IsParticipant(id domain.ParticipantID) bool {
	_, ok := tx.m.st.participants[id]
	return ok
}

// AddObserver registers id as a non-interactive observer. Interactive
// participants are left untouched.
func (tx *Tx) AddObserver(id domain.ParticipantID) bool {
	if _, ok := tx.m.st.participants[id]; ok {
		return false
	}
	if _, ok := tx.m.st.observers[id]; ok {
		return false
	}
	tx.m.st.observers[id] = struct{}{}
	return true
}

// RemoveObserver drops id from the observer set.
func (tx *Tx) RemoveObserver(id domain.ParticipantID) bool {
	if _, ok := tx.m.st.observers[id]; !ok {
		return false
	}
	delete(tx.m.st.observers, id)
	return true
}

// Participants returns the participant ids in sorted order.
func (tx *Tx) Participants() []domain.ParticipantID {
	return sortedIDs(tx.m.st.participants)
}

// Snapshot returns a copy of the state visible to tx.
func (tx *Tx) Snapshot() Snapshot {
	return Snapshot{
		Phase:        tx.m.st.phase,
		Participants: sortedIDs(tx.m.st.participants),
		Observers:    sortedIDs(tx.m.st.observers),
	}
}

// Observers returns the observer ids in sorted order.
func (tx *Tx) Observers() []domain.ParticipantID {
	return sortedIDs(tx.m.st.observers)
}

// ClearObservers empties the observer set.
func (tx *Tx) ClearObservers() {
	clear(tx.m.st.observers)
}

func sortedIDs(set map[domain.ParticipantID]struct{}) []domain.ParticipantID {
	ids := make([]domain.ParticipantID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
