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
	"github.com/edvin/backuprelay/internal/model"
)

// Backup serves the internal UI surface: manual uploads, record reads,
// preview, extraction, download links, and deletes.
type Backup struct {
	projects  *core.ProjectService
	backups   *core.BackupService
	ingest    *core.IngestService
	retrieval *core.RetrievalService
	rec       recorder
}

func NewBackup(svcs *core.Services, audit *core.AuditLogger, trustedHeader string) *Backup {
	return &Backup{
		projects:  svcs.Project,
		backups:   svcs.Backup,
		ingest:    svcs.Ingest,
		retrieval: svcs.Retrieval,
		rec:       recorder{audit: audit, trustedHeader: trustedHeader},
	}
}

func (h *Backup) Upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	file, err := request.ReadUploadFile(r, "file", core.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, request.ErrNoFile) {
			h.rec.record(r, nil, http.StatusBadRequest, model.ErrCodeFileMissing, "no file uploaded", start, nil)
			response.WriteError(w, http.StatusBadRequest, "no file uploaded")
			return
		}
		h.rec.record(r, nil, http.StatusBadRequest, "", err.Error(), start, nil)
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	projectID := r.FormValue("project_id")
	if projectID == "" {
		projectID = r.FormValue("projectId")
	}
	if projectID == "" {
		h.rec.record(r, nil, http.StatusBadRequest, "", "missing project_id", start, nil)
		response.WriteError(w, http.StatusBadRequest, "missing project_id")
		return
	}

	project, err := h.projects.GetByID(r.Context(), projectID)
	if err != nil {
		h.rec.recordError(r, &projectID, err, start)
		writeServiceError(w, err)
		return
	}

	backup, err := h.ingest.IngestManual(r.Context(), core.UploadInput{
		Project:     project,
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Data:        file.Data,
		Tag:         r.FormValue("tag"),
	})
	if err != nil {
		h.rec.recordError(r, &project.ID, err, start)
		writeServiceError(w, err)
		return
	}

	middleware.CountUploadBytes("manual", backup.FileSize)
	h.rec.record(r, &project.ID, http.StatusCreated, "", "", start,
		map[string]any{"backup_id": backup.ID, "file_size": backup.FileSize})
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":         backup.ID,
		"project_id": backup.ProjectID,
		"file_size":  backup.FileSize,
		"created_at": backup.CreatedAt,
	})
}

func (h *Backup) Get(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	backup, err := h.backups.GetByID(r.Context(), id)
	if err != nil {
		h.rec.recordError(r, nil, err, start)
		writeServiceError(w, err)
		return
	}
	h.rec.record(r, &backup.ProjectID, http.StatusOK, "", "", start, nil)
	response.WriteJSON(w, http.StatusOK, backup)
}

func (h *Backup) Preview(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.retrieval.Preview(r.Context(), id)
	if err != nil {
		h.rec.recordError(r, nil, err, start)
		writeServiceError(w, err)
		return
	}
	h.rec.record(r, &res.ProjectID, http.StatusOK, "", "", start, nil)
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"backup_id":    res.BackupID,
		"project_id":   res.ProjectID,
		"project_name": res.ProjectName,
		"json_key":     res.JSONKey,
		"content":      res.Content,
	})
}

func (h *Backup) Extract(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.retrieval.Extract(r.Context(), id)
	if err != nil {
		h.rec.recordError(r, nil, err, start)
		writeServiceError(w, err)
		return
	}

	if res.AlreadyExtracted {
		response.WriteJSON(w, http.StatusOK, map[string]any{
			"message":  "already extracted",
			"json_key": res.JSONKey,
		})
		return
	}

	h.rec.record(r, nil, http.StatusOK, "", "", start,
		map[string]any{"backup_id": id, "json_key": res.JSONKey})
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"json_key":         res.JSONKey,
		"source_file":      res.SourceFile,
		"json_files_found": res.JSONFilesFound,
	})
}

func (h *Backup) Download(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.retrieval.Download(r.Context(), id)
	if err != nil {
		h.rec.recordError(r, nil, err, start)
		writeServiceError(w, err)
		return
	}
	h.rec.record(r, &res.ProjectID, http.StatusOK, "", "", start, nil)
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"url":        res.URL,
		"file_key":   res.FileKey,
		"file_size":  res.FileSize,
		"expires_in": core.PresignTTLSeconds,
	})
}

func (h *Backup) Delete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.retrieval.Delete(r.Context(), id); err != nil {
		h.rec.recordError(r, nil, err, start)
		writeServiceError(w, err)
		return
	}

	h.rec.record(r, nil, http.StatusOK, "", "", start, map[string]any{"backup_id": id})
	response.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Backup) BatchDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req request.BatchDeleteBackups
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	deleted, err := h.retrieval.DeleteBatch(r.Context(), req.IDs)
	if err != nil {
		h.rec.recordError(r, nil, err, start)
		writeServiceError(w, err)
		return
	}

	h.rec.record(r, nil, http.StatusOK, "", "", start, map[string]any{"deleted": deleted})
	response.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}
