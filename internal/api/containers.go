package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"jobkernel/internal/apperrors"
	"jobkernel/internal/facade"
)

// ListImages handles GET /v1/images
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	res, err := h.kernel.ListImages(r.Context(), correlationID(r, ""))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// CreateContainer handles POST /v1/containers
func (h *Handler) CreateContainer(w http.ResponseWriter, r *http.Request) {
	var req facade.CreateContainer
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.kernel.CreateContainer(r.Context(), correlationID(r, ""), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

// StartContainer handles POST /v1/containers/{id}/start
func (h *Handler) StartContainer(w http.ResponseWriter, r *http.Request) {
	res, err := h.kernel.StartContainer(r.Context(), correlationID(r, ""), facade.StartContainer{
		ContainerID: chi.URLParam(r, "id"),
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// StopContainer handles POST /v1/containers/{id}/stop
// Query params: timeout (Go duration, optional)
func (h *Handler) StopContainer(w http.ResponseWriter, r *http.Request) {
	req := facade.StopContainer{ContainerID: chi.URLParam(r, "id")}
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			h.handleError(w, r, apperrors.Validation("timeout", "timeout must be a non-negative duration such as 10s"))
			return
		}
		req.Timeout = d
	}

	res, err := h.kernel.StopContainer(r.Context(), correlationID(r, ""), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// RemoveContainer handles DELETE /v1/containers/{id}
// Query params: force (bool, optional)
func (h *Handler) RemoveContainer(w http.ResponseWriter, r *http.Request) {
	req := facade.RemoveContainer{ContainerID: chi.URLParam(r, "id")}
	if raw := r.URL.Query().Get("force"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			h.handleError(w, r, apperrors.Validation("force", "force must be a boolean"))
			return
		}
		req.Force = force
	}

	res, err := h.kernel.RemoveContainer(r.Context(), correlationID(r, ""), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ContainerLogs handles GET /v1/containers/{id}/logs
// Query params: tail (int, optional), since (RFC 3339, optional)
func (h *Handler) ContainerLogs(w http.ResponseWriter, r *http.Request) {
	req := facade.GetContainerLogs{ContainerID: chi.URLParam(r, "id")}
	q := r.URL.Query()
	if raw := q.Get("tail"); raw != "" {
		tail, err := strconv.Atoi(raw)
		if err != nil {
			h.handleError(w, r, apperrors.Validation("tail", "tail must be an integer"))
			return
		}
		req.Tail = tail
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.handleError(w, r, apperrors.Validation("since", "since must be an RFC 3339 timestamp"))
			return
		}
		req.Since = since
	}

	res, err := h.kernel.ContainerLogs(r.Context(), correlationID(r, ""), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}
