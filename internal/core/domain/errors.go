package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates caller input violated a business rule.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidInput indicates malformed input reaching an adapter.
	// It is a validation failure.
	ErrInvalidInput = fmt.Errorf("%w: invalid input", ErrValidation)

	// ErrUnsupportedType indicates an unknown file type or backend name.
	ErrUnsupportedType = fmt.Errorf("%w: unsupported type", ErrValidation)

	// ErrQuotaExceeded indicates a tenant plan limit was reached.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrInvalidTransition indicates a run state change outside the allowed table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrExternalProcess indicates the external trainer failed or produced no artifact.
	ErrExternalProcess = errors.New("external process failed")
)

// ErrorKind classifies an error into the pipeline taxonomy.
type ErrorKind int

// Error kinds.
const (
	KindInternal ErrorKind = iota
	KindValidation
	KindQuota
	KindInvalidTransition
	KindExternalProcess
	KindNotFound
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindQuota:
		return "quota_exceeded"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindExternalProcess:
		return "external_process"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// KindOf maps err onto the taxonomy. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrExternalProcess):
		return KindExternalProcess
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// ValidationError reports rejected input.
type ValidationError struct {
	// Field names the offending input, if any.
	Field string

	// Reason is a human-readable explanation.
	Reason string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// QuotaExceededError reports a plan limit violation.
type QuotaExceededError struct {
	Resource string
	Used     int64
	Limit    int64
	Plan     PlanTier
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded (%d/%d) for plan %s", e.Resource, e.Used, e.Limit, e.Plan)
}

// Is matches ErrQuotaExceeded.
func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// InvalidTransitionError reports a state change missing from the transition table.
type InvalidTransitionError struct {
	From RunState
	To   RunState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ExternalProcessError reports an external trainer failure.
type ExternalProcessError struct {
	Command  string
	ExitCode int
	Reason   string
}

func (e *ExternalProcessError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("external trainer failed with code %d: %s", e.ExitCode, e.Reason)
	}
	return "external trainer failed: " + e.Reason
}

// Is matches ErrExternalProcess.
func (e *ExternalProcessError) Is(target error) bool { return target == ErrExternalProcess }

// NotFoundError reports a missing entity reference.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
