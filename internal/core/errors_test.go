package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: "not_found", Message: "Flow 'io.floworc_report' not found."}
	got := err.Error()
	want := "[not_found] Flow 'io.floworc_report' not found."
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("bad flow", map[string]any{"id": "x"})
	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeValidation)
	}
	if err.Retryable {
		t.Error("expected Retryable = false")
	}
	if err.Details["id"] != "x" {
		t.Errorf("Details[id] = %v, want %q", err.Details["id"], "x")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Flow", "io.floworc_report")
	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeNotFound)
	}
	if err.Details["resource_type"] != "Flow" {
		t.Errorf("Details[resource_type] = %v, want %q", err.Details["resource_type"], "Flow")
	}
}

func TestNewMalformedExpressionError(t *testing.T) {
	err := NewMalformedExpressionError("bad cron", errors.New("expected 5 fields"))
	if err.Code != ErrCodeMalformedExpression {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeMalformedExpression)
	}
	if err.Details["expression"] != "bad cron" {
		t.Errorf("Details[expression] = %v, want %q", err.Details["expression"], "bad cron")
	}
}

func TestNewInternalError_Retryable(t *testing.T) {
	err := NewInternalError("backend unavailable")
	if !err.Retryable {
		t.Error("expected Retryable = true for internal errors")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NewNotFoundError("Flow", "x")) {
		t.Error("IsNotFound() = false for a not_found error")
	}
	if IsNotFound(NewValidationError("x", nil)) {
		t.Error("IsNotFound() = true for a validation error")
	}
	wrapped := fmt.Errorf("lookup: %w", NewNotFoundError("Flow", "x"))
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound() = false for a wrapped not_found error")
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(NewValidationError("x", nil)) {
		t.Error("IsValidation() = false for a validation error")
	}
	if IsValidation(errors.New("plain")) {
		t.Error("IsValidation() = true for a plain error")
	}
}
