package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrIdeaNotFound      = errors.New("idea not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrPrecondition      = errors.New("transition precondition not met")
)

// InvalidTransitionError reports an illegal status change request. It names
// the current and the requested state so callers can explain the failure
// without retry guessing.
type InvalidTransitionError struct {
	IdeaID string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("idea %s: invalid transition %s -> %s", e.IdeaID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// PreconditionError reports a legal edge whose required data is missing.
type PreconditionError struct {
	IdeaID string
	To     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("idea %s: cannot enter %s: %s", e.IdeaID, e.To, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}
