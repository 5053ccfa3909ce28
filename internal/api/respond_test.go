package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/floworc/floworc-backend-nats/internal/core"
)

func TestWriteJSON_SetsContentType(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != MediaType {
		t.Errorf("Content-Type = %q, want %q", ct, MediaType)
	}
}

func TestWriteDomainError_NotFound(t *testing.T) {
	w := httptest.NewRecorder()

	WriteDomainError(w, core.NewNotFoundError("Flow", "ns_flow"))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Code != core.ErrCodeNotFound {
		t.Errorf("code = %q, want %q", resp.Error.Code, core.ErrCodeNotFound)
	}
}

func TestWriteDomainError_MalformedExpression(t *testing.T) {
	w := httptest.NewRecorder()

	WriteDomainError(w, core.NewMalformedExpressionError("bad cron", errors.New("parse failure")))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestWriteDomainError_Conflict(t *testing.T) {
	w := httptest.NewRecorder()

	WriteDomainError(w, core.NewConflictError("flow identity is immutable", nil))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestWriteDomainError_UnknownBecomesOpaque500(t *testing.T) {
	w := httptest.NewRecorder()

	WriteDomainError(w, errors.New("nats: connection refused"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Code != core.ErrCodeInternal {
		t.Errorf("code = %q, want %q", resp.Error.Code, core.ErrCodeInternal)
	}
	if resp.Error.Message != "internal error" {
		t.Errorf("message leaked internals: %q", resp.Error.Message)
	}
}
