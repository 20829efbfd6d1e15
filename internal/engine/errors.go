package engine

import (
	"errors"
	"fmt"

	"draftline/internal/domain"
)

// ErrBudgetExhausted rejects a refinement request with zero iterations left.
// Raised before any external generation call is made.
var ErrBudgetExhausted = errors.New("iteration budget exhausted")

// ForbiddenError indicates the acting actor's role or ownership does not
// permit the requested operation. The store is left untouched.
type ForbiddenError struct {
	ActorID string
	Action  string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s is not allowed to %s", e.ActorID, e.Action)
}

// IllegalTransitionError indicates the requested status change is not an
// edge of the state machine from the current state.
type IllegalTransitionError struct {
	From domain.ContentStatus
	To   domain.ContentStatus
}

func (e IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s", e.From, e.To)
}

// ValidationError indicates missing or malformed input, rejected before any
// side effect.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}
