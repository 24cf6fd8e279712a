package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/backuprelay/internal/dbhttp"
	"github.com/edvin/backuprelay/internal/model"
)

// WebhookLogService owns the webhook_logs audit table.
type WebhookLogService struct {
	db DB
}

func NewWebhookLogService(db DB) *WebhookLogService {
	return &WebhookLogService{db: db}
}

const webhookLogColumns = `id, project_id, method, path, status_code, client_ip, user_agent, error_code, error_message, duration_ms, metadata, created_at`

func webhookLogFromRow(r dbhttp.Row) *model.WebhookLogEntry {
	entry := &model.WebhookLogEntry{
		ID:           r.String("id"),
		ProjectID:    r.StringPtr("project_id"),
		Method:       r.String("method"),
		Path:         r.String("path"),
		StatusCode:   int(r.Int64("status_code")),
		ClientIP:     r.StringPtr("client_ip"),
		UserAgent:    r.StringPtr("user_agent"),
		ErrorCode:    r.StringPtr("error_code"),
		ErrorMessage: r.StringPtr("error_message"),
		DurationMS:   r.Int64Ptr("duration_ms"),
		CreatedAt:    r.Time("created_at"),
	}
	if raw := r.StringPtr("metadata"); raw != nil {
		entry.Metadata = []byte(*raw)
	}
	return entry
}

func (s *WebhookLogService) Insert(ctx context.Context, e *model.WebhookLogEntry) error {
	var metadata *string
	if len(e.Metadata) > 0 {
		m := string(e.Metadata)
		metadata = &m
	}
	_, err := s.db.Execute(ctx,
		`INSERT INTO webhook_logs (`+webhookLogColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.Method, e.Path, e.StatusCode, e.ClientIP, e.UserAgent,
		e.ErrorCode, e.ErrorMessage, e.DurationMS, metadata, sqlTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert webhook log: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries first, optionally narrowed to one
// project.
func (s *WebhookLogService) ListRecent(ctx context.Context, projectID *string, limit int) ([]model.WebhookLogEntry, error) {
	query := `SELECT ` + webhookLogColumns + ` FROM webhook_logs`
	var params []any
	if projectID != nil {
		query += ` WHERE project_id = ?`
		params = append(params, *projectID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	params = append(params, limit)

	rows, err := s.db.Execute(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list webhook logs: %w", err)
	}
	entries := make([]model.WebhookLogEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, *webhookLogFromRow(r))
	}
	return entries, nil
}

// Purge deletes entries created before the cutoff, optionally narrowed to
// one project. Returns the number of rows removed when the backend reports
// it, zero otherwise.
func (s *WebhookLogService) Purge(ctx context.Context, before time.Time, projectID *string) (int64, error) {
	query := `DELETE FROM webhook_logs WHERE created_at < ?`
	params := []any{sqlTime(before)}
	if projectID != nil {
		query += ` AND project_id = ?`
		params = append(params, *projectID)
	}

	rows, err := s.db.Execute(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("purge webhook logs: %w", err)
	}
	if len(rows) > 0 {
		return rows[0].Int64("rows_affected"), nil
	}
	return 0, nil
}
