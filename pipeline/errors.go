package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Usage errors. These are returned from calls directly, never retried, and
// never mutate the context or its stored snapshot.
var (
	ErrDuplicateStage       = errors.New("stage already registered")
	ErrUnknownStage         = errors.New("unknown stage")
	ErrTaskNotFound         = errors.New("task not found")
	ErrInvalidResumeState   = errors.New("context is not in a runnable state")
	ErrResumeTargetMismatch = errors.New("resume target does not match suspended stage")
	ErrVersionConflict      = errors.New("context snapshot version conflict")
)

// ErrorKind labels the structured error attached to a halted context.
type ErrorKind string

const (
	ErrorKindContract      ErrorKind = "ContractViolation"
	ErrorKindTransient     ErrorKind = "TransientCapabilityError"
	ErrorKindPermanent     ErrorKind = "PermanentCapabilityError"
	ErrorKindLowConfidence ErrorKind = "LowConfidenceOutcome"
)

// CapabilityError wraps an adapter failure with its retry classification.
// Transient failures (timeouts, temporary unavailability) are retried up to
// the stage's attempt budget; permanent failures halt the pipeline at once.
type CapabilityError struct {
	Transient bool
	Err       error
}

func (e *CapabilityError) Error() string {
	if e.Transient {
		return fmt.Sprintf("transient capability error: %v", e.Err)
	}
	return fmt.Sprintf("permanent capability error: %v", e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Transient marks err as retriable.
func Transient(err error) error {
	return &CapabilityError{Transient: true, Err: err}
}

// Permanent marks err as non-retriable.
func Permanent(err error) error {
	return &CapabilityError{Err: err}
}

// IsTransient reports whether err should be retried. Context deadline
// expiry counts as transient: per-call timeouts are supplied by the
// orchestrator and fall under the stage's retry policy.
func IsTransient(err error) bool {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}
