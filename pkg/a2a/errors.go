package a2a

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound         = errors.New("a2a: task not found")
	ErrTaskExists           = errors.New("a2a: task already exists")
	ErrInvalidTransition    = errors.New("a2a: invalid task state transition")
	ErrUnsupportedOperation = errors.New("a2a: unsupported operation")
)

// PreconditionError reports a request that is missing a required
// correlation field, or carries a malformed one. It is raised before any
// collaborator runs.
type PreconditionError struct {
	Field  string
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("a2a: invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("a2a: missing required %s", e.Field)
}

// TransitionError carries the rejected transition for logging.
type TransitionError struct {
	TaskID string
	From   TaskState
	To     TaskState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("a2a: task %s cannot move from %q to %q", e.TaskID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
