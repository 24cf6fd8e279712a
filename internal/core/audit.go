package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backuprelay/internal/model"
	"github.com/edvin/backuprelay/internal/platform"
)

// AuditLogger is an async writer for the webhook_logs table. Requests never
// wait on the audit insert; entries are buffered and drained in the
// background, and dropped with a warning when the buffer is full.
type AuditLogger struct {
	logs   *WebhookLogService
	logger zerolog.Logger
	ch     chan *model.WebhookLogEntry
	done   chan struct{}
}

func NewAuditLogger(logs *WebhookLogService, logger zerolog.Logger) *AuditLogger {
	al := &AuditLogger{
		logs:   logs,
		logger: logger.With().Str("component", "audit").Logger(),
		ch:     make(chan *model.WebhookLogEntry, 1024),
		done:   make(chan struct{}),
	}
	go al.drain()
	return al
}

func (al *AuditLogger) drain() {
	defer close(al.done)
	for entry := range al.ch {
		// context.Background since this runs after the request finished
		if err := al.logs.Insert(context.Background(), entry); err != nil {
			al.logger.Error().Err(err).Str("path", entry.Path).Msg("failed to write webhook log")
		}
	}
}

// Close stops accepting entries and waits for the drain to finish.
func (al *AuditLogger) Close() {
	close(al.ch)
	<-al.done
}

// Log queues one entry, filling in ID and timestamp.
func (al *AuditLogger) Log(e *model.WebhookLogEntry) {
	e.ID = platform.NewID()
	e.CreatedAt = time.Now().UTC()

	select {
	case al.ch <- e:
	default:
		al.logger.Warn().Str("path", e.Path).Msg("webhook log buffer full, dropping entry")
	}
}
