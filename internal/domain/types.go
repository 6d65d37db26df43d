// Package domain defines the core types shared by the session coordinator.
package domain

import "time"

// Phase represents the lifecycle stage of the session.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseRecruiting Phase = "recruiting"
	PhasePreparing  Phase = "preparing"
	PhaseStarting   Phase = "starting"
	PhasePlaying    Phase = "playing"
	PhaseEnding     Phase = "ending"
)

// Phases lists every phase in typical progression order.
var Phases = []Phase{
	PhaseLoading,
	PhaseRecruiting,
	PhasePreparing,
	PhaseStarting,
	PhasePlaying,
	PhaseEnding,
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// String returns the phase name.
func (p Phase) String() string {
	return string(p)
}

// ParticipantID identifies a connected player.
type ParticipantID string

// CapabilityID identifies an ability that is gated by a cooldown.
type CapabilityID string

// LoginDecision is the answer to a login attempt.
type LoginDecision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Err returns nil for an allowed login and an ErrLoginDenied carrying the
// reason otherwise.
func (d LoginDecision) Err() error {
	if d.Allow {
		return nil
	}
	return &EngineError{Code: ErrLoginDenied.Code, Message: d.Reason}
}

// Vector is a direction or velocity in world space.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Scale multiplies every component of v by f.
func (v Vector) Scale(f float64) Vector {
	return Vector{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Effect describes what an ability produced. Applying it to the world is the
// job of an external collaborator.
type Effect struct {
	Capability CapabilityID  `json:"capability"`
	Actor      ParticipantID `json:"actor"`
	Kind       string        `json:"kind"`
	Velocity   Vector        `json:"velocity"`
	At         time.Time     `json:"at"`
}

// SessionEvent is one entry of the session journal.
type SessionEvent struct {
	ID          int64  `json:"id"`
	SessionID   string `json:"session_id"`
	SeqNo       int64  `json:"seq_no"`
	Phase       Phase  `json:"phase"`
	EventType   string `json:"event_type"`
	PayloadJSON string `json:"payload_json"`
	CreatedAt   int64  `json:"created_at"`
}

// AuditRecord captures a refused or notable request.
type AuditRecord struct {
	ID           string `json:"id"`
	SessionID    string `json:"session_id"`
	Category     string `json:"category"`
	Actor        string `json:"actor"`
	Action       string `json:"action"`
	RequestJSON  string `json:"request_json"`
	DecisionJSON string `json:"decision_json"`
	Severity     string `json:"severity"`
	CreatedAt    int64  `json:"created_at"`
}

// SessionRecord is the journal row describing the running session.
type SessionRecord struct {
	SessionID     string `json:"session_id"`
	CurrentPhase  Phase  `json:"current_phase"`
	Round         int    `json:"round"`
	LastEventSeq  int64  `json:"last_event_seq"`
	StartedAtUnix int64  `json:"started_at_unix"`
	UpdatedAtUnix int64  `json:"updated_at_unix"`
}

// PhaseSnapshot is the membership recorded when a phase was entered.
type PhaseSnapshot struct {
	ID           int64  `json:"id"`
	SessionID    string `json:"session_id"`
	Phase        Phase  `json:"phase"`
	Round        int    `json:"round"`
	SnapshotJSON string `json:"snapshot_json"`
	Checksum     string `json:"checksum"`
	CreatedAt    int64  `json:"created_at"`
}

// Journal event types.
const (
	EventSessionOpened = "session_opened"
	EventPhaseChanged  = "phase_changed"
	EventJoined        = "participant_joined"
	EventLeft          = "participant_left"
	EventObserving     = "observer_joined"
	EventChainStarted  = "countdown_started"
	EventChainAborted  = "countdown_aborted"
	EventAbilityUsed   = "ability_used"
)
