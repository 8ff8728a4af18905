package schemas

import "errors"

// Sentinel errors shared across components. Component-level faults are
// converted into these before crossing package boundaries so callers can use
// errors.Is at decision points.
var (
	// ErrActionTimeout signals a click/await step exceeded its bound.
	ErrActionTimeout = errors.New("action timed out")
	// ErrActionIneffective signals the action fired but the banner is still
	// present; callers escalate to the next strategy or step.
	ErrActionIneffective = errors.New("action had no observable effect")
	// ErrStrategyExhausted signals every configured strategy/step failed.
	ErrStrategyExhausted = errors.New("all strategies exhausted")
	// ErrPersistence signals a storage read/write failed. Non-fatal: the
	// operation continues without persistence.
	ErrPersistence = errors.New("persistence failed")
	// ErrNodeDetached signals the referenced node left the live tree.
	ErrNodeDetached = errors.New("node detached")
	// ErrNoRecommendation signals the optimizer could not produce an answer
	// in time; the coordinator proceeds as if none were available.
	ErrNoRecommendation = errors.New("no recommendation available")
)

// ReasonForError maps an escalated error to its outcome reason.
func ReasonForError(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrActionTimeout):
		return ReasonActionTimeout
	case errors.Is(err, ErrActionIneffective):
		return ReasonActionIneffective
	case errors.Is(err, ErrStrategyExhausted):
		return ReasonStrategyExhausted
	case errors.Is(err, ErrPersistence):
		return ReasonPersistenceFailure
	default:
		return ReasonStrategyExhausted
	}
}
