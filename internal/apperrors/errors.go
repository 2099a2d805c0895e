// Package apperrors provides the kernel's error taxonomy with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrPersistence = errors.New("persistence error")
	ErrCorrupt     = errors.New("corrupt snapshot")
	ErrDispatch    = errors.New("command failed")
	ErrUnavailable = errors.New("unavailable")
	ErrInternal    = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel      error  // Wrapped sentinel for errors.Is() classification
	Message       string // Human-readable message
	Field         string // For validation errors (e.g., "targetUrl")
	Resource      string // For not found/conflict (e.g., "job")
	Op            string // Operation that failed (e.g., "jobstore.save")
	CorrelationID string // Correlation identity of the request that failed, if any
	Cause         error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel and the cause, so errors.Is matches either.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Persistence creates a store error for a mutation that could not be committed.
func Persistence(op, correlationID string, cause error) error {
	return &Error{
		Sentinel:      ErrPersistence,
		Message:       fmt.Sprintf("%s: %v", op, cause),
		Op:            op,
		CorrelationID: correlationID,
		Cause:         cause,
	}
}

// Corrupt creates an error for a snapshot that exists but cannot be used.
func Corrupt(op string, cause error) error {
	return &Error{
		Sentinel: ErrCorrupt,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Dispatch creates an error for a command whose unit of work failed.
func Dispatch(command, correlationID, reason string, cause error) error {
	return &Error{
		Sentinel:      ErrDispatch,
		Message:       fmt.Sprintf("%s %s: %s", command, correlationID, reason),
		Op:            command,
		CorrelationID: correlationID,
		Cause:         cause,
	}
}

// Unavailable creates an error for a component that no longer accepts requests.
func Unavailable(component string) error {
	return &Error{
		Sentinel: ErrUnavailable,
		Message:  component + " is closed",
		Resource: component,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
