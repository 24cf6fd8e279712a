package core

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backuprelay/internal/dbhttp"
)

// DB executes SQL through the remote query service.
type DB interface {
	Execute(ctx context.Context, sql string, params ...any) ([]dbhttp.Row, error)
}

// ObjectStore is the blob backend holding archives and previews.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, int64, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) (int, error)
}

type Services struct {
	Project    *ProjectService
	Backup     *BackupService
	Ingest     *IngestService
	Retrieval  *RetrievalService
	WebhookLog *WebhookLogService
}

func NewServices(db DB, store ObjectStore, logger zerolog.Logger) *Services {
	project := NewProjectService(db)
	backup := NewBackupService(db)
	return &Services{
		Project:    project,
		Backup:     backup,
		Ingest:     NewIngestService(backup, store, logger),
		Retrieval:  NewRetrievalService(backup, project, store, logger),
		WebhookLog: NewWebhookLogService(db),
	}
}
