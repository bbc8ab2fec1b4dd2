package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrValidation = errors.New("invalid input")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrTransient  = errors.New("transient failure")
	ErrPermission = errors.New("permission denied")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeTransient  ErrorType = "transient"
	ErrorTypePermission ErrorType = "permission"
)

// ReconcileError is a structured error for reconciliation operations
type ReconcileError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "verify", "update_verification")
	Email      string // Normalized email the operation was keyed on
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Timestamp  time.Time
	Retryable  bool
}

func (e *ReconcileError) Error() string {
	if e.Email != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Email, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *ReconcileError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrValidation:
		return e.Type == ErrorTypeValidation
	case ErrConflict:
		return e.Type == ErrorTypeConflict
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrTransient:
		return e.Type == ErrorTypeTransient
	case ErrPermission:
		return e.Type == ErrorTypePermission
	}

	return errors.Is(e.Err, target)
}

// New creates a new ReconcileError
func New(errorType ErrorType, op, email string, err error) *ReconcileError {
	return &ReconcileError{
		Type:      errorType,
		Op:        op,
		Email:     email,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: errorType == ErrorTypeTransient,
	}
}

// WithStatusCode adds HTTP status code to the error
func (e *ReconcileError) WithStatusCode(code int) *ReconcileError {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

// Helper functions

// WrapTransient wraps an external I/O failure with operation context
func WrapTransient(op, email string, err error) error {
	return New(ErrorTypeTransient, op, email, err)
}

// WrapPermission wraps a directory permissions failure with operation context
func WrapPermission(op, email string, err error) error {
	return New(ErrorTypePermission, op, email, err)
}

// WrapConflict wraps an identity-claim conflict with operation context
func WrapConflict(op, email string, err error) error {
	return New(ErrorTypeConflict, op, email, err)
}

// IsRetryableError checks if an error is safe to re-submit as-is
func IsRetryableError(err error) bool {
	var recErr *ReconcileError
	if errors.As(err, &recErr) {
		return recErr.Retryable
	}
	return errors.Is(err, ErrTransient)
}

// IsPermissionError checks if an error came from missing directory rights
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}

	var recErr *ReconcileError
	if errors.As(err, &recErr) {
		if recErr.Type == ErrorTypePermission {
			return true
		}
		if recErr.StatusCode == 401 || recErr.StatusCode == 403 {
			return true
		}
	}

	return errors.Is(err, ErrPermission)
}
