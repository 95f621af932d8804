package session

import (
	"errors"
	"fmt"
)

var (
	// ErrStateViolation is matched by every [*StateViolationError].
	ErrStateViolation = errors.New("session: state violation")

	// ErrStopped is the cancellation cause of a turn whose session was ended
	// or aborted while it ran.
	ErrStopped = errors.New("session: stopped")
)

// StateViolationError reports a call that the session's current state does
// not allow, such as completing a turn after the session ended.
type StateViolationError struct {
	// Op is the rejected operation ("start_turn", "complete_turn").
	Op string
	// Status is the session status at the time of the call.
	Status Status
	// Turn is the turn index involved, or 0.
	Turn   int
	Reason string
}

func (e *StateViolationError) Error() string {
	if e.Turn > 0 {
		return fmt.Sprintf("session: %s turn %d: %s (session %s)", e.Op, e.Turn, e.Reason, e.Status)
	}
	return fmt.Sprintf("session: %s: %s (session %s)", e.Op, e.Reason, e.Status)
}

// Is makes errors.Is(err, ErrStateViolation) match.
func (e *StateViolationError) Is(target error) bool { return target == ErrStateViolation }
