package core

import (
	"errors"
	"fmt"
)

// Error codes used across the backend.
const (
	ErrCodeValidation          = "validation_error"
	ErrCodeNotFound            = "not_found"
	ErrCodeConflict            = "conflict"
	ErrCodeMalformedExpression = "malformed_expression"
	ErrCodeInternal            = "internal_error"
)

// Error is the coded error type surfaced by the flow repository and the
// trigger scheduler. Details carry structured context for API responses.
type Error struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewValidationError reports a structural or semantic rejection of a flow.
// Validation failures block the write entirely.
func NewValidationError(message string, details map[string]any) *Error {
	return &Error{
		Code:      ErrCodeValidation,
		Message:   message,
		Details:   details,
		Retryable: false,
	}
}

// NewNotFoundError reports a missing (namespace, id[, revision]) target.
func NewNotFoundError(resourceType, resourceID string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s '%s' not found.", resourceType, resourceID),
		Details: map[string]any{
			"resource_type": resourceType,
			"resource_id":   resourceID,
		},
		Retryable: false,
	}
}

// NewConflictError reports an operation against a document in the wrong state.
func NewConflictError(message string, details map[string]any) *Error {
	return &Error{
		Code:      ErrCodeConflict,
		Message:   message,
		Details:   details,
		Retryable: false,
	}
}

// NewMalformedExpressionError reports a cron expression that failed to parse.
// Raised at trigger construction, never deferred to evaluation time.
func NewMalformedExpressionError(expression string, cause error) *Error {
	return &Error{
		Code:    ErrCodeMalformedExpression,
		Message: fmt.Sprintf("Invalid cron expression: %s", expression),
		Details: map[string]any{
			"expression": expression,
			"error":      cause.Error(),
		},
		Retryable: false,
	}
}

// NewInternalError reports an infrastructure failure (storage, transport).
func NewInternalError(message string) *Error {
	return &Error{
		Code:      ErrCodeInternal,
		Message:   message,
		Retryable: true,
	}
}

// IsNotFound reports whether err is a not_found domain error.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeNotFound
}

// IsValidation reports whether err is a validation domain error.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeValidation
}
