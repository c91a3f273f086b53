package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the core wraps exactly one of them so
// transports can classify with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUpstream    = errors.New("upstream failure")
	ErrPersistence = errors.New("persistence failure")
)

var (
	ErrNoPreviews           = fmt.Errorf("%w: no previews yet", ErrValidation)
	ErrNoValidPicks         = fmt.Errorf("%w: no valid picks", ErrValidation)
	ErrAcquisitionExhausted = fmt.Errorf("%w: no candidates from any filter profile", ErrUpstream)
	ErrNoUsableCandidates   = errors.New("no usable candidates after ranking")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StateConflictError is returned when an operation is not permitted from the
// job's current state.
type StateConflictError struct {
	Op    string
	State JobState
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("job is %s, cannot %s", e.State, e.Op)
}

func (e *StateConflictError) Unwrap() error { return ErrConflict }

// Persistence wraps a store driver error so it matches ErrPersistence and
// still exposes the cause.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
