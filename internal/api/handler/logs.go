package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/edvin/backuprelay/internal/api/response"
	"github.com/edvin/backuprelay/internal/core"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// Logs serves the webhook audit log: recent entries and purge-by-age.
type Logs struct {
	svc *core.WebhookLogService
}

func NewLogs(svc *core.WebhookLogService) *Logs {
	return &Logs{svc: svc}
}

func (h *Logs) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLogLimit {
			response.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	var projectID *string
	if v := r.URL.Query().Get("project_id"); v != "" {
		projectID = &v
	}

	entries, err := h.svc.ListRecent(r.Context(), projectID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (h *Logs) Purge(w http.ResponseWriter, r *http.Request) {
	beforeRaw := r.URL.Query().Get("before")
	if beforeRaw == "" {
		response.WriteError(w, http.StatusBadRequest, "missing required before parameter")
		return
	}
	before, err := time.Parse(time.RFC3339, beforeRaw)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "before must be an RFC3339 timestamp")
		return
	}

	var projectID *string
	if v := r.URL.Query().Get("project_id"); v != "" {
		projectID = &v
	}

	purged, err := h.svc.Purge(r.Context(), before, projectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "purged": purged})
}
