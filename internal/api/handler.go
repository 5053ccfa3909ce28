package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/floworc/floworc-backend-nats/internal/core"
)

// defaultSearchLimit caps search pages when the client does not pass one.
const defaultSearchLimit = 25

// FlowHandler serves the flow CRUD and query endpoints.
type FlowHandler struct {
	repo core.FlowRepository
}

// NewFlowHandler creates a FlowHandler backed by the given repository.
func NewFlowHandler(repo core.FlowRepository) *FlowHandler {
	return &FlowHandler{repo: repo}
}

// SearchResponse is the paginated payload of the search endpoint.
type SearchResponse struct {
	Results []*core.Flow `json:"results"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// List returns current flows. With ?q= it searches namespace/id substrings
// and paginates; without, it returns all current flows.
func (h *FlowHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Has("q") || query.Has("limit") || query.Has("offset") {
		limit := queryInt(r, "limit", defaultSearchLimit)
		offset := queryInt(r, "offset", 0)
		flows, total, err := h.repo.Find(r.Context(), query.Get("q"), limit, offset)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if flows == nil {
			flows = []*core.Flow{}
		}
		WriteJSON(w, http.StatusOK, SearchResponse{
			Results: flows,
			Total:   total,
			Limit:   limit,
			Offset:  offset,
		})
		return
	}

	flows, err := h.repo.FindAll(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if flows == nil {
		flows = []*core.Flow{}
	}
	WriteJSON(w, http.StatusOK, flows)
}

// ListNamespace returns the current flows of one namespace.
func (h *FlowHandler) ListNamespace(w http.ResponseWriter, r *http.Request) {
	flows, err := h.repo.FindByNamespace(r.Context(), chi.URLParam(r, "namespace"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if flows == nil {
		flows = []*core.Flow{}
	}
	WriteJSON(w, http.StatusOK, flows)
}

// Get returns one flow: the current revision, or with ?revision=N the exact
// historical snapshot (delete markers included).
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	revision := queryInt(r, "revision", 0)
	flow, err := h.repo.FindByID(r.Context(), chi.URLParam(r, "namespace"), chi.URLParam(r, "id"), revision)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, flow)
}

// Revisions returns a flow's full history, ascending by revision.
func (h *FlowHandler) Revisions(w http.ResponseWriter, r *http.Request) {
	history, err := h.repo.FindRevisions(r.Context(), chi.URLParam(r, "namespace"), chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, history)
}

// Create persists a new flow.
func (h *FlowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var flow core.Flow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		WriteError(w, http.StatusBadRequest,
			core.NewValidationError("invalid flow payload", map[string]any{"error": err.Error()}))
		return
	}

	created, err := h.repo.Create(r.Context(), &flow)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

// Update replaces the flow identified by the path. The path identity is
// authoritative; the body must carry the same namespace and id.
func (h *FlowHandler) Update(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	id := chi.URLParam(r, "id")

	var flow core.Flow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		WriteError(w, http.StatusBadRequest,
			core.NewValidationError("invalid flow payload", map[string]any{"error": err.Error()}))
		return
	}

	previous := &core.Flow{Namespace: namespace, ID: id}
	updated, err := h.repo.Update(r.Context(), &flow, previous)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

// Delete soft-deletes a flow and returns its terminal snapshot.
func (h *FlowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.repo.Delete(r.Context(), chi.URLParam(r, "namespace"), chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, deleted)
}

// NamespaceHandler serves namespace discovery.
type NamespaceHandler struct {
	repo core.FlowRepository
}

// NewNamespaceHandler creates a NamespaceHandler.
func NewNamespaceHandler(repo core.FlowRepository) *NamespaceHandler {
	return &NamespaceHandler{repo: repo}
}

// List returns the sorted namespaces holding at least one current flow.
func (h *NamespaceHandler) List(w http.ResponseWriter, r *http.Request) {
	namespaces, err := h.repo.FindDistinctNamespaces(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if namespaces == nil {
		namespaces = []string{}
	}
	WriteJSON(w, http.StatusOK, namespaces)
}

// HealthChecker is the liveness slice of the backend.
type HealthChecker interface {
	Healthy(ctx context.Context) error
	Uptime() time.Duration
}

// SystemHandler serves health and metadata endpoints.
type SystemHandler struct {
	checker HealthChecker
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(checker HealthChecker) *SystemHandler {
	return &SystemHandler{checker: checker}
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Backend       string `json:"backend"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Health reports liveness of the server and its backend connection.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       core.Version,
		Backend:       "nats",
		UptimeSeconds: int64(h.checker.Uptime().Seconds()),
	}
	if err := h.checker.Healthy(r.Context()); err != nil {
		resp.Status = "degraded"
		WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if val := r.URL.Query().Get(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			return n
		}
	}
	return defaultVal
}
