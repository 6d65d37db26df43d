package domain

import "fmt"

// EngineError is the unified error type for the coordinator.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is matches any EngineError carrying the same code, so a detailed error
// built with NewEngineError still satisfies errors.Is against the sentinel.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Session / FSM errors (-32010 to -32039) ----

var (
	ErrInvalidTransition  = &EngineError{Code: -32010, Message: "invalid phase transition"}
	ErrInvalidPhase       = &EngineError{Code: -32011, Message: "invalid phase value"}
	ErrInvalidParticipant = &EngineError{Code: -32012, Message: "participant id is required"}
	ErrUnknownAction      = &EngineError{Code: -32014, Message: "unknown phase action"}
)

// ---- Scheduler / countdown errors (-32040 to -32069) ----

var (
	ErrSchedulerStopped = &EngineError{Code: -32040, Message: "scheduler is stopped"}
	ErrInvalidCountdown = &EngineError{Code: -32041, Message: "invalid countdown settings"}
	ErrTaskPanicked     = &EngineError{Code: -32042, Message: "scheduled work panicked"}
)

// ---- Ability / cooldown errors (-32070 to -32099) ----

var (
	ErrUnknownCapability = &EngineError{Code: -32070, Message: "unknown capability"}
	ErrCooldownActive    = &EngineError{Code: -32071, Message: "capability is cooling down"}
	ErrAbilityNotAllowed = &EngineError{Code: -32072, Message: "abilities are not available to this actor right now"}
	ErrDuplicateAbility  = &EngineError{Code: -32073, Message: "capability already registered"}
)

// ---- Admission errors (-32100 to -32129) ----

var (
	ErrLoginDenied       = &EngineError{Code: -32100, Message: "login denied"}
	ErrRateLimitExceeded = &EngineError{Code: -32101, Message: "rate limit exceeded"}
)

// ---- Store / config errors (-32130 to -32159) ----

var (
	ErrStoreInit      = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery     = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite     = &EngineError{Code: -32132, Message: "store write failed"}
	ErrConfigInvalid  = &EngineError{Code: -32136, Message: "invalid configuration"}
	ErrDuplicateEvent = &EngineError{Code: -32137, Message: "duplicate event sequence number"}
)
