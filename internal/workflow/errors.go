package workflow

import (
	"errors"
	"fmt"
)

// Workflow errors.
var (
	// ErrNotRunnable signals an advance attempt against a suspended or
	// terminal invoice.
	ErrNotRunnable = errors.New("workflow stage is not runnable")
	// ErrNotSuspended signals a review decision against an invoice that is
	// not in human review.
	ErrNotSuspended = errors.New("invoice is not suspended for review")
)

// StageError wraps a stage execution failure. Fatal failures skip the retry
// budget and dead-letter immediately.
type StageError struct {
	Stage Stage
	Fatal bool
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// transient wraps a retryable stage failure.
func transient(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// fatal wraps a stage failure that retrying cannot fix.
func fatal(stage Stage, err error) error {
	return &StageError{Stage: stage, Fatal: true, Err: err}
}

// Retryable reports whether a failed stage execution should consume a retry
// attempt rather than dead-letter immediately.
func Retryable(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return !se.Fatal
	}
	return true
}
