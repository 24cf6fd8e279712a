package model

import (
	"encoding/json"
	"time"
)

// WebhookLogEntry is one audit record for a request against the webhook or
// retrieval surface. Entries are append-only.
type WebhookLogEntry struct {
	ID           string          `json:"id"`
	ProjectID    *string         `json:"project_id,omitempty"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	StatusCode   int             `json:"status_code"`
	ClientIP     *string         `json:"client_ip,omitempty"`
	UserAgent    *string         `json:"user_agent,omitempty"`
	ErrorCode    *string         `json:"error_code,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	DurationMS   *int64          `json:"duration_ms,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Structured error codes recorded on rejected or failed webhook requests.
const (
	ErrCodeAuthMissing     = "auth_missing"
	ErrCodeAuthInvalid     = "auth_invalid"
	ErrCodeIPBlocked       = "ip_blocked"
	ErrCodeFileMissing     = "file_missing"
	ErrCodeFileEmpty       = "file_empty"
	ErrCodeFileTooLarge    = "file_too_large"
	ErrCodeFileTypeInvalid = "file_type_invalid"
	ErrCodeEnvInvalid      = "env_invalid"
	ErrCodeUploadFailed    = "upload_failed"
	ErrCodeDBFailed        = "db_failed"
	ErrCodeInternalError   = "internal_error"
)
