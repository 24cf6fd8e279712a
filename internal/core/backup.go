package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/backuprelay/internal/dbhttp"
	"github.com/edvin/backuprelay/internal/model"
)

// sqlTimeFormat is UTC RFC3339 with millisecond precision, the timestamp
// representation used throughout the metadata schema.
const sqlTimeFormat = "2006-01-02T15:04:05.000Z07:00"

func sqlTime(t time.Time) string {
	return t.UTC().Format(sqlTimeFormat)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// BackupService owns the backups table. The ingestion and retrieval
// services go through it for every metadata read and write.
type BackupService struct {
	db DB
}

func NewBackupService(db DB) *BackupService {
	return &BackupService{db: db}
}

const backupColumns = `id, project_id, environment, sender_ip, tag, file_key, json_key, file_size, is_single_json, json_extracted, created_at, updated_at`

func backupFromRow(r dbhttp.Row) *model.Backup {
	return &model.Backup{
		ID:            r.String("id"),
		ProjectID:     r.String("project_id"),
		Environment:   r.StringPtr("environment"),
		SenderIP:      r.String("sender_ip"),
		Tag:           r.StringPtr("tag"),
		FileKey:       r.String("file_key"),
		JSONKey:       r.StringPtr("json_key"),
		FileSize:      r.Int64("file_size"),
		IsSingleJSON:  r.Bool("is_single_json"),
		JSONExtracted: r.Bool("json_extracted"),
		CreatedAt:     r.Time("created_at"),
		UpdatedAt:     r.Time("updated_at"),
	}
}

func (s *BackupService) Insert(ctx context.Context, b *model.Backup) error {
	_, err := s.db.Execute(ctx,
		`INSERT INTO backups (`+backupColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ProjectID, b.Environment, b.SenderIP, b.Tag, b.FileKey, b.JSONKey,
		b.FileSize, boolToInt(b.IsSingleJSON), boolToInt(b.JSONExtracted),
		sqlTime(b.CreatedAt), sqlTime(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

func (s *BackupService) GetByID(ctx context.Context, id string) (*model.Backup, error) {
	rows, err := s.db.Execute(ctx,
		`SELECT `+backupColumns+` FROM backups WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get backup %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return backupFromRow(rows[0]), nil
}

// SetPreview records the preview key written by extraction and marks the
// backup extracted.
func (s *BackupService) SetPreview(ctx context.Context, id, jsonKey string) error {
	_, err := s.db.Execute(ctx,
		`UPDATE backups SET json_key = ?, json_extracted = 1, updated_at = ? WHERE id = ?`,
		jsonKey, sqlTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set preview for backup %s: %w", id, err)
	}
	return nil
}

func (s *BackupService) Delete(ctx context.Context, id string) error {
	_, err := s.db.Execute(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete backup %s: %w", id, err)
	}
	return nil
}

// CountByProject counts a project's backups, optionally narrowed to one
// environment.
func (s *BackupService) CountByProject(ctx context.Context, projectID string, environment *string) (int64, error) {
	query := `SELECT COUNT(*) AS n FROM backups WHERE project_id = ?`
	params := []any{projectID}
	if environment != nil {
		query += ` AND environment = ?`
		params = append(params, *environment)
	}

	rows, err := s.db.Execute(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("count backups for project %s: %w", projectID, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Int64("n"), nil
}

// ListRecentByProject returns the newest backups first, optionally narrowed
// to one environment.
func (s *BackupService) ListRecentByProject(ctx context.Context, projectID string, environment *string, limit int) ([]model.Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backups WHERE project_id = ?`
	params := []any{projectID}
	if environment != nil {
		query += ` AND environment = ?`
		params = append(params, *environment)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	params = append(params, limit)

	rows, err := s.db.Execute(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list backups for project %s: %w", projectID, err)
	}
	backups := make([]model.Backup, 0, len(rows))
	for _, r := range rows {
		backups = append(backups, *backupFromRow(r))
	}
	return backups, nil
}
