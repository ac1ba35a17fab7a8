package domain

import (
	"errors"
	"fmt"
)

// MaxErrorLength bounds error strings persisted alongside outbox rows and
// saga state.
const MaxErrorLength = 512

var (
	ErrDeviceNotFound         = errors.New("device not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrCircuitOpen            = errors.New("circuit breaker open")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

type (
	// ValidationError covers malformed input and rejected domain transitions.
	// It maps to HTTP 400 in the delivery layer.
	ValidationError struct {
		Message string
	}

	// ConflictError is surfaced when an optimistic-concurrency update touched
	// no rows and the aggregate still exists. Maps to HTTP 409.
	ConflictError struct {
		ResourceID      string
		ExpectedVersion int
	}

	// TransientExternalError wraps a failed call to an external collaborator.
	// In the worker it is retryable; it never reaches the HTTP surface.
	TransientExternalError struct {
		Dependency string
		Cause      error
	}
)

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewConflictError(resourceID string, expectedVersion int) *ConflictError {
	return &ConflictError{ResourceID: resourceID, ExpectedVersion: expectedVersion}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource %s was modified by another request (expected version %d)", e.ResourceID, e.ExpectedVersion)
}

func (e *ConflictError) Unwrap() error {
	return ErrConcurrentModification
}

func NewTransientExternalError(dependency string, cause error) *TransientExternalError {
	return &TransientExternalError{Dependency: dependency, Cause: cause}
}

func (e *TransientExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dependency, e.Cause)
}

func (e *TransientExternalError) Unwrap() error {
	return e.Cause
}

// TruncateError bounds a failure message to MaxErrorLength for persistence.
func TruncateError(message string) string {
	if len(message) > MaxErrorLength {
		return message[:MaxErrorLength]
	}

	return message
}
