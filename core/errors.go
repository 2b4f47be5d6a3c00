package core

import (
	"errors"
	"fmt"
)

// Error taxonomy for the pipeline. Components classify failures into one of
// four categories and each category has a fixed handling policy:
//
//   - ValidationError: malformed input. Rejected at the ingestion boundary,
//     reported to the caller, never processed.
//   - NotFoundError: unknown device/user reference. Logged, the affected
//     action is skipped, processing continues.
//   - TransientError: store or notification dependency unavailable. Retried
//     with backoff up to a small bound, then the action is marked failed.
//   - anything else: unexpected internal error. Caught at the component
//     boundary and converted to that component's safe fallback.

// ValidationError indicates malformed input that must not be processed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a named field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError indicates a reference to an entity that does not exist.
type NotFoundError struct {
	Entity string
	Ref    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Ref)
}

// NewNotFoundError creates a not-found error for an entity reference.
func NewNotFoundError(entity, ref string) *NotFoundError {
	return &NotFoundError{Entity: entity, Ref: ref}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// TransientError indicates a dependency failure that is worth retrying.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps a dependency failure as retryable.
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
