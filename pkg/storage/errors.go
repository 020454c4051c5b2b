package storage

import (
	"errors"
	"fmt"
)

// Common errors returned by storage operations.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidToken is returned when a caller-supplied token cannot be
	// used as a storage key.
	ErrInvalidToken = errors.New("invalid token")
)

// NotFoundError wraps ErrNotFound with additional context.
type NotFoundError struct {
	ResourceType string // "progress", "state", "baseline", etc.
	ResourceID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceID)
}

// Unwrap returns the underlying error.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Is checks if the error matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resourceType, resourceID string) error {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
