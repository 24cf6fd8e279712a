package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/backuprelay/internal/api/middleware"
	"github.com/edvin/backuprelay/internal/api/request"
	"github.com/edvin/backuprelay/internal/api/response"
	"github.com/edvin/backuprelay/internal/core"
	"github.com/edvin/backuprelay/internal/ipaccess"
	"github.com/edvin/backuprelay/internal/model"
)

// Webhook serves the agent-facing surface: authenticated status checks and
// backup pushes.
type Webhook struct {
	projects *core.ProjectService
	backups  *core.BackupService
	ingest   *core.IngestService
	rec      recorder

	trustedHeader string
}

func NewWebhook(projects *core.ProjectService, backups *core.BackupService, ingest *core.IngestService, audit *core.AuditLogger, trustedHeader string) *Webhook {
	return &Webhook{
		projects:      projects,
		backups:       backups,
		ingest:        ingest,
		rec:           recorder{audit: audit, trustedHeader: trustedHeader},
		trustedHeader: trustedHeader,
	}
}

// authorize runs the auth ladder shared by all webhook verbs: bearer token
// present, token resolves to the project in the path, client IP permitted.
// On failure the response and audit entry are already written.
func (h *Webhook) authorize(w http.ResponseWriter, r *http.Request, start time.Time) (*model.Project, bool) {
	projectID := chi.URLParam(r, "projectID")

	token, ok := bearerToken(r)
	if !ok {
		h.rec.record(r, nil, http.StatusUnauthorized, model.ErrCodeAuthMissing, "missing or malformed Authorization header", start, nil)
		response.WriteError(w, http.StatusUnauthorized, "missing or malformed Authorization header")
		return nil, false
	}

	project, err := h.projects.GetByToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			h.rec.record(r, &projectID, http.StatusForbidden, model.ErrCodeAuthInvalid, "invalid token", start, nil)
			response.WriteError(w, http.StatusForbidden, "invalid token")
			return nil, false
		}
		h.rec.recordError(r, &projectID, err, start)
		writeServiceError(w, err)
		return nil, false
	}
	if project.ID != projectID {
		h.rec.record(r, &projectID, http.StatusForbidden, model.ErrCodeAuthInvalid, "token does not belong to this project", start, nil)
		response.WriteError(w, http.StatusForbidden, "token does not belong to this project")
		return nil, false
	}

	if !ipaccess.Enforce(w, r, project.AllowedIPs, h.trustedHeader) {
		h.rec.record(r, &project.ID, http.StatusForbidden, model.ErrCodeIPBlocked, "client IP not in allowed ranges", start, nil)
		return nil, false
	}
	return project, true
}

func (h *Webhook) Head(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	project, ok := h.authorize(w, r, start)
	if !ok {
		return
	}

	h.rec.record(r, &project.ID, http.StatusOK, "", "", start, nil)
	w.Header().Set("X-Project-Name", project.Name)
	w.WriteHeader(http.StatusOK)
}

type backupSummary struct {
	ID          string    `json:"id"`
	Environment *string   `json:"environment"`
	Tag         *string   `json:"tag"`
	FileSize    int64     `json:"file_size"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *Webhook) Status(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	project, ok := h.authorize(w, r, start)
	if !ok {
		return
	}

	var environment *string
	if env := r.URL.Query().Get("environment"); env != "" {
		if !model.ValidEnvironment(env) {
			h.rec.record(r, &project.ID, http.StatusBadRequest, model.ErrCodeEnvInvalid, "invalid environment filter", start, nil)
			response.WriteError(w, http.StatusBadRequest, "environment must be one of dev, staging, prod, test")
			return
		}
		environment = &env
	}

	total, err := h.backups.CountByProject(r.Context(), project.ID, environment)
	if err != nil {
		h.rec.recordError(r, &project.ID, err, start)
		writeServiceError(w, err)
		return
	}
	recent, err := h.backups.ListRecentByProject(r.Context(), project.ID, environment, 5)
	if err != nil {
		h.rec.recordError(r, &project.ID, err, start)
		writeServiceError(w, err)
		return
	}

	summaries := make([]backupSummary, 0, len(recent))
	for _, b := range recent {
		summaries = append(summaries, backupSummary{
			ID:          b.ID,
			Environment: b.Environment,
			Tag:         b.Tag,
			FileSize:    b.FileSize,
			CreatedAt:   b.CreatedAt,
		})
	}

	h.rec.record(r, &project.ID, http.StatusOK, "", "", start, nil)
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"project_name":       project.Name,
		"environment_filter": environment,
		"total_backups":      total,
		"recent_backups":     summaries,
	})
}

func (h *Webhook) Push(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	project, ok := h.authorize(w, r, start)
	if !ok {
		return
	}

	file, err := request.ReadUploadFile(r, "file", core.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, request.ErrNoFile) {
			h.rec.record(r, &project.ID, http.StatusBadRequest, model.ErrCodeFileMissing, "no file uploaded", start, nil)
			response.WriteError(w, http.StatusBadRequest, "no file uploaded")
			return
		}
		h.rec.record(r, &project.ID, http.StatusBadRequest, "", err.Error(), start, nil)
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	senderIP := ipaccess.ClientIP(r.Header, h.trustedHeader)
	if senderIP == "" {
		senderIP = "unknown"
	}

	backup, err := h.ingest.IngestWebhook(r.Context(), core.UploadInput{
		Project:     project,
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Data:        file.Data,
		Environment: r.FormValue("environment"),
		Tag:         r.FormValue("tag"),
		SenderIP:    senderIP,
	})
	if err != nil {
		h.rec.recordError(r, &project.ID, err, start)
		writeServiceError(w, err)
		return
	}

	middleware.CountUploadBytes("webhook", backup.FileSize)
	h.rec.record(r, &project.ID, http.StatusCreated, "", "", start,
		map[string]any{"backup_id": backup.ID, "file_size": backup.FileSize})
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":         backup.ID,
		"project_id": backup.ProjectID,
		"file_size":  backup.FileSize,
		"created_at": backup.CreatedAt,
	})
}
