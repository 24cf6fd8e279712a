package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/backuprelay/internal/api/request"
	"github.com/edvin/backuprelay/internal/api/response"
	"github.com/edvin/backuprelay/internal/core"
	"github.com/edvin/backuprelay/internal/ipaccess"
)

// Restore is the publicly reachable presigned-link endpoint, authenticated
// by the owning project's webhook token.
type Restore struct {
	retrieval     *core.RetrievalService
	rec           recorder
	trustedHeader string
}

func NewRestore(retrieval *core.RetrievalService, audit *core.AuditLogger, trustedHeader string) *Restore {
	return &Restore{
		retrieval:     retrieval,
		rec:           recorder{audit: audit, trustedHeader: trustedHeader},
		trustedHeader: trustedHeader,
	}
}

func (h *Restore) Get(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Query parameter wins over the bearer header.
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r)
	}

	clientIP := ipaccess.ClientIP(r.Header, h.trustedHeader)

	res, err := h.retrieval.Restore(r.Context(), id, token, clientIP)
	if err != nil {
		h.rec.recordError(r, nil, err, start)
		writeServiceError(w, err)
		return
	}

	h.rec.record(r, &res.ProjectID, http.StatusOK, "", "", start,
		map[string]any{"backup_id": res.BackupID, "file_size": res.FileSize})
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"url":        res.URL,
		"backup_id":  res.BackupID,
		"project_id": res.ProjectID,
		"file_size":  res.FileSize,
		"expires_in": core.PresignTTLSeconds,
	})
}
