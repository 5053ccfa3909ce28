package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/floworc/floworc-backend-nats/internal/core"
)

// MediaType is the content type of every API response.
const MediaType = "application/json"

// ErrorResponse is the error envelope returned for every failed request.
type ErrorResponse struct {
	Error *core.Error `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteError writes a coded error in the error envelope.
func WriteError(w http.ResponseWriter, status int, coreErr *core.Error) {
	WriteJSON(w, status, ErrorResponse{Error: coreErr})
}

// WriteDomainError maps a domain error to its HTTP status and writes it.
// Unknown errors become an opaque 500; the original is logged, not leaked.
func WriteDomainError(w http.ResponseWriter, err error) {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		slog.Error("unhandled error", "error", err)
		WriteError(w, http.StatusInternalServerError, core.NewInternalError("internal error"))
		return
	}
	WriteError(w, statusFor(coreErr.Code), coreErr)
}

func statusFor(code string) int {
	switch code {
	case core.ErrCodeValidation, core.ErrCodeMalformedExpression:
		return http.StatusBadRequest
	case core.ErrCodeNotFound:
		return http.StatusNotFound
	case core.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
