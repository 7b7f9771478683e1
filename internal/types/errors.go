package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific error type
type ErrorCode string

const (
	// Input errors
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Store errors
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrConflict         ErrorCode = "CONFLICT"
	ErrNotFound         ErrorCode = "NOT_FOUND"

	// Task errors
	ErrDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
)

// CoreError represents a resolution or store error with a stable code
type CoreError struct {
	Code    ErrorCode
	Message string
	Err     error // Underlying error, if any
}

// Error implements the error interface
func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CoreError) Unwrap() error {
	return e.Err
}

// NewCoreError creates a new CoreError
func NewCoreError(code ErrorCode, message string) *CoreError {
	return &CoreError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error in a CoreError
func WrapError(code ErrorCode, message string, err error) *CoreError {
	return &CoreError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error is a CoreError with a specific code
func IsCode(err error, code ErrorCode) bool {
	var coreErr *CoreError
	if err == nil {
		return false
	}
	if ok := As(err, &coreErr); !ok {
		return false
	}
	return coreErr.Code == code
}

// As is a helper function to safely type assert an error to a CoreError,
// unwrapping as needed
func As(err error, target **CoreError) bool {
	if target == nil {
		return false
	}
	return errors.As(err, target)
}
