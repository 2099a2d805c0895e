// Package api provides the HTTP API handlers and routing for the jobs service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/delivery"
	"jobkernel/internal/facade"
	"jobkernel/internal/health"
	"jobkernel/internal/job"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// CorrelationHeader carries the caller's correlation identity when the
// request body does not.
const CorrelationHeader = "X-Correlation-Id"

// Handler contains HTTP handlers for the jobs API
type Handler struct {
	jobs     *job.Service
	events   delivery.Subscriptions
	builder  *job.EventBuilder
	webhooks *delivery.Registry
	kernel   *facade.Facade
	health   *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(cfg RouterConfig) *Handler {
	return &Handler{
		jobs:     cfg.Jobs,
		events:   cfg.Events,
		builder:  cfg.EventBuilder,
		webhooks: cfg.Webhooks,
		kernel:   cfg.Kernel,
		health:   cfg.HealthChecker,
	}
}

// CreateJob handles POST /v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req job.CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CorrelationID = correlationID(r, req.CorrelationID)

	created, err := h.jobs.Create(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set(CorrelationHeader, created.CorrelationID)
	h.writeJSON(w, http.StatusCreated, created)
}

// ListJobs handles GET /v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	resp, err := h.jobs.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /v1/jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "jobId")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		h.handleError(w, r, apperrors.Validation("jobId", "job ID must be a positive integer"))
		return
	}

	j, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, j)
}

type subscriptionRequest struct {
	URL string `json:"url"`
	Key string `json:"key,omitempty"`
}

// CreateSubscription handles POST /v1/subscriptions
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	webhook, err := h.webhooks.Add(r.Context(), req.URL, req.Key)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, webhook)
}

// ListSubscriptions handles GET /v1/subscriptions
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"subscriptions": h.webhooks.List()})
}

// DeleteSubscription handles DELETE /v1/subscriptions/{id}
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := h.webhooks.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 if the engine or the job store is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
// It writes a 400 and returns false on malformed input.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// correlationID picks the correlation identity of a request: the body value,
// then the header, then a fresh UUID.
func correlationID(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if v := r.Header.Get(CorrelationHeader); v != "" {
		return v
	}
	return uuid.NewString()
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error(), "code": apperrors.Code(err)})
}
