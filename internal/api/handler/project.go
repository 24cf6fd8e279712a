package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/backuprelay/internal/api/request"
	"github.com/edvin/backuprelay/internal/api/response"
	"github.com/edvin/backuprelay/internal/core"
)

// Project serves project administration: creation and token rotation.
type Project struct {
	svc *core.ProjectService
}

func NewProject(svc *core.ProjectService) *Project {
	return &Project{svc: svc}
}

func (h *Project) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateProject
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.svc.Create(r.Context(), req.Name, req.Description, req.AllowedIPs)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateToken) {
			response.WriteError(w, http.StatusConflict, "webhook token already in use")
			return
		}
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, project)
}

func (h *Project) RotateToken(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.svc.RotateToken(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"id":            project.ID,
		"webhook_token": project.WebhookToken,
		"updated_at":    project.UpdatedAt,
	})
}
