// Package domain provides shared domain-level sentinel errors and the typed
// errors raised by entity constructors and state transitions.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking
// on version, or a conditional status update that matched no row).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates invalid input supplied to an entity constructor.
var ErrValidation = errors.New("validation error")

// ErrInvalidState indicates an operation was invoked from a state that does
// not permit it.
var ErrInvalidState = errors.New("invalid state")

// ValidationError reports a rejected constructor argument.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError returns a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Message)
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InvalidStateError reports an illegal transition. State carries the
// entity's status at the time of the call so callers can branch on it.
type InvalidStateError struct {
	Entity    string
	Operation string
	State     string
}

// NewInvalidStateError returns an InvalidStateError.
func NewInvalidStateError(entity, operation, state string) *InvalidStateError {
	return &InvalidStateError{Entity: entity, Operation: operation, State: state}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s with status %s", e.Operation, e.Entity, e.State)
}

// Is makes errors.Is(err, ErrInvalidState) match.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}
