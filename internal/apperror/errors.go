package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline failure classes
var (
	ErrFetch        = errors.New("fetch error")
	ErrPersistence  = errors.New("persistence error")
	ErrNotification = errors.New("notification delivery error")
	ErrScheduler    = errors.New("scheduler trigger error")
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidState = errors.New("invalid state transition")
)

// PipelineError wraps an underlying error with the failure class and the
// operation that produced it. The class drives how callers react: fetch and
// persistence errors fail the current job, notification errors are isolated
// per recipient, scheduler errors are logged and swallowed at the trigger.
type PipelineError struct {
	Kind      error  // one of the sentinels above
	Operation string // e.g. "navigate", "insert history entry"
	Err       error  // underlying cause
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return e.Operation
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the failure class sentinel.
func (e *PipelineError) Is(target error) bool {
	return target == e.Kind
}

// Constructor functions for the failure classes

func Fetch(operation string, err error) *PipelineError {
	return &PipelineError{Kind: ErrFetch, Operation: operation, Err: err}
}

func Persistence(operation string, err error) *PipelineError {
	return &PipelineError{Kind: ErrPersistence, Operation: operation, Err: err}
}

func Notification(operation string, err error) *PipelineError {
	return &PipelineError{Kind: ErrNotification, Operation: operation, Err: err}
}

func Scheduler(operation string, err error) *PipelineError {
	return &PipelineError{Kind: ErrScheduler, Operation: operation, Err: err}
}

func InvalidState(from, to string) *PipelineError {
	return &PipelineError{
		Kind:      ErrInvalidState,
		Operation: fmt.Sprintf("transition %s -> %s", from, to),
	}
}

// IsFetch reports whether err belongs to the fetch failure class.
func IsFetch(err error) bool {
	return errors.Is(err, ErrFetch)
}

// IsPersistence reports whether err belongs to the persistence failure class.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}
