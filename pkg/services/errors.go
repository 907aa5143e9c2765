package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity does not exist or is not
	// visible to the caller. Cross-user lookups surface this, not a
	// permission error, so existence is never leaked.
	ErrNotFound = errors.New("entity not found")

	// ErrEmailTaken is returned when registering with an email that is
	// already in use
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned on login with a wrong email or
	// password
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
