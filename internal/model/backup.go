package model

import "time"

type Backup struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Environment   *string   `json:"environment,omitempty"`
	SenderIP      string    `json:"sender_ip"`
	Tag           *string   `json:"tag,omitempty"`
	FileKey       string    `json:"file_key"`
	JSONKey       *string   `json:"json_key,omitempty"`
	FileSize      int64     `json:"file_size"`
	IsSingleJSON  bool      `json:"is_single_json"`
	JSONExtracted bool      `json:"json_extracted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	EnvironmentDev     = "dev"
	EnvironmentStaging = "staging"
	EnvironmentProd    = "prod"
	EnvironmentTest    = "test"
)

// ValidEnvironment reports whether env is one of the accepted environment tags.
func ValidEnvironment(env string) bool {
	switch env {
	case EnvironmentDev, EnvironmentStaging, EnvironmentProd, EnvironmentTest:
		return true
	}
	return false
}

// SenderManualUpload is recorded as the sender IP for uploads made through
// the internal UI rather than the agent webhook.
const SenderManualUpload = "manual-upload"
