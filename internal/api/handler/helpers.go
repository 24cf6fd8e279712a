package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/edvin/backuprelay/internal/api/response"
	"github.com/edvin/backuprelay/internal/core"
	"github.com/edvin/backuprelay/internal/ipaccess"
	"github.com/edvin/backuprelay/internal/model"
)

// writeServiceError maps service-layer failures to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *core.Error
	switch {
	case errors.As(err, &svcErr):
		response.WriteError(w, svcErr.Status, svcErr.Message)
	case errors.Is(err, core.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, "not found")
	default:
		response.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// bearerToken extracts the token from a "Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// recorder builds webhook log entries from request context and hands them to
// the async audit writer.
type recorder struct {
	audit         *core.AuditLogger
	trustedHeader string
}

func (rec recorder) record(r *http.Request, projectID *string, status int, errCode, errMsg string, start time.Time, metadata any) {
	entry := &model.WebhookLogEntry{
		ProjectID:  projectID,
		Method:     r.Method,
		Path:       r.URL.Path,
		StatusCode: status,
	}
	if ip := ipaccess.ClientIP(r.Header, rec.trustedHeader); ip != "" {
		entry.ClientIP = &ip
	}
	if ua := r.UserAgent(); ua != "" {
		entry.UserAgent = &ua
	}
	if errCode != "" {
		entry.ErrorCode = &errCode
	}
	if errMsg != "" {
		entry.ErrorMessage = &errMsg
	}
	ms := time.Since(start).Milliseconds()
	entry.DurationMS = &ms
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = raw
		}
	}
	rec.audit.Log(entry)
}

// recordError pulls the structured code off a service error when one is
// present.
func (rec recorder) recordError(r *http.Request, projectID *string, err error, start time.Time) {
	var svcErr *core.Error
	if errors.As(err, &svcErr) {
		rec.record(r, projectID, svcErr.Status, svcErr.Code, svcErr.Message, start, nil)
		return
	}
	if errors.Is(err, core.ErrNotFound) {
		rec.record(r, projectID, http.StatusNotFound, "", "not found", start, nil)
		return
	}
	rec.record(r, projectID, http.StatusInternalServerError, model.ErrCodeInternalError, err.Error(), start, nil)
}
