package predictions

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation wraps every rejected append payload.
	ErrValidation = errors.New("invalid prediction data")
	// ErrNotFound indicates no record has the requested id.
	ErrNotFound = errors.New("prediction not found")
	// ErrStorageUnavailable indicates the prediction document could not be read or written.
	ErrStorageUnavailable = errors.New("prediction storage unavailable")
)

// ValidationError names the offending field of a rejected payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
