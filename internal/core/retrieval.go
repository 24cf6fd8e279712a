package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backuprelay/internal/archive"
	"github.com/edvin/backuprelay/internal/ipaccess"
	"github.com/edvin/backuprelay/internal/model"
)

const (
	// MaxExtractBytes caps the JSON entry pulled out of an archive.
	MaxExtractBytes = 10 << 20
	// MaxPreviewBytes caps what the preview endpoint will buffer and parse;
	// it is deliberately tighter than the extraction cap because the result
	// is rendered in a UI.
	MaxPreviewBytes = 5 << 20

	// PresignTTLSeconds is the lifetime of every issued download link.
	PresignTTLSeconds = 900
)

// RetrievalService serves existing backups: zip-to-JSON extraction, preview
// streaming, and presigned restore links.
type RetrievalService struct {
	backups  *BackupService
	projects *ProjectService
	store    ObjectStore
	logger   zerolog.Logger
}

func NewRetrievalService(backups *BackupService, projects *ProjectService, store ObjectStore, logger zerolog.Logger) *RetrievalService {
	return &RetrievalService{
		backups:  backups,
		projects: projects,
		store:    store,
		logger:   logger.With().Str("component", "retrieval").Logger(),
	}
}

type ExtractResult struct {
	JSONKey          string
	SourceFile       string
	JSONFilesFound   int
	AlreadyExtracted bool
}

// Extract pulls the first JSON entry out of a zip backup and stores it as
// the preview. Calling it again is a no-op returning the existing key.
func (s *RetrievalService) Extract(ctx context.Context, id string) (*ExtractResult, error) {
	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.JSONKey != nil {
		return &ExtractResult{JSONKey: *b.JSONKey, AlreadyExtracted: true}, nil
	}
	if b.IsSingleJSON {
		return nil, NewError(http.StatusBadRequest, "", "backup is a single JSON file, nothing to extract")
	}

	body, _, _, err := s.store.Get(ctx, b.FileKey)
	if err != nil {
		s.logger.Error().Err(err).Str("key", b.FileKey).Msg("download archive")
		return nil, NewError(http.StatusInternalServerError, model.ErrCodeInternalError, "failed to download archive")
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, MaxUploadBytes+1))
	if err != nil {
		return nil, NewError(http.StatusInternalServerError, model.ErrCodeInternalError, "failed to read archive")
	}
	if int64(len(data)) > MaxUploadBytes {
		return nil, NewError(http.StatusRequestEntityTooLarge, "", "archive exceeds the 50MB limit")
	}

	name, raw, count, err := archive.ExtractFirstJSON(data, MaxExtractBytes)
	switch {
	case errors.Is(err, archive.ErrNoJSONEntries):
		return nil, NewError(http.StatusBadRequest, "", "No JSON files found in archive")
	case errors.Is(err, archive.ErrEntryTooLarge):
		return nil, NewError(http.StatusRequestEntityTooLarge, "", fmt.Sprintf("%s exceeds the 10MB extraction limit", name))
	case err != nil:
		return nil, NewError(http.StatusBadRequest, "", "backup is not a valid zip archive")
	}

	if !json.Valid(raw) {
		return nil, NewError(http.StatusBadRequest, "", fmt.Sprintf("%s is not valid JSON", name))
	}

	jsonKey := previewKey(b.ProjectID, storageTimestamp(time.Now()))
	if err := s.store.Put(ctx, jsonKey, raw, contentTypeJSON); err != nil {
		s.logger.Error().Err(err).Str("key", jsonKey).Msg("store extracted preview")
		return nil, NewError(http.StatusInternalServerError, model.ErrCodeUploadFailed, "failed to store extracted JSON")
	}
	if err := s.backups.SetPreview(ctx, b.ID, jsonKey); err != nil {
		s.logger.Error().Err(err).Str("backup_id", b.ID).Msg("record extracted preview")
		return nil, NewError(http.StatusInternalServerError, model.ErrCodeDBFailed, "failed to update backup metadata")
	}

	return &ExtractResult{JSONKey: jsonKey, SourceFile: name, JSONFilesFound: count}, nil
}

type PreviewResult struct {
	BackupID    string
	ProjectID   string
	ProjectName string
	JSONKey     string
	Content     any
}

// Preview buffers and parses the stored preview object.
func (s *RetrievalService) Preview(ctx context.Context, id string) (*PreviewResult, error) {
	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.JSONKey == nil {
		if !b.IsSingleJSON && !b.JSONExtracted {
			return nil, NewError(http.StatusNotFound, "", "no preview available yet, extract the backup first")
		}
		return nil, NewError(http.StatusNotFound, "", "no preview available")
	}

	body, _, _, err := s.store.Get(ctx, *b.JSONKey)
	if err != nil {
		s.logger.Error().Err(err).Str("key", *b.JSONKey).Msg("download preview")
		return nil, NewError(http.StatusInternalServerError, model.ErrCodeInternalError, "failed to download preview")
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, MaxPreviewBytes+1))
	if err != nil {
		return nil, NewError(http.StatusInternalServerError, model.ErrCodeInternalError, "failed to read preview")
	}
	if int64(len(data)) > MaxPreviewBytes {
		return nil, NewError(http.StatusRequestEntityTooLarge, "", "preview exceeds the 5MB limit")
	}

	var content any
	if err := json.Unmarshal(data, &content); err != nil {
		// Extraction validates JSON before storing, so a corrupt preview
		// means the stored object was damaged.
		s.logger.Error().Err(err).Str("key", *b.JSONKey).Msg("stored preview is not valid JSON")
		return nil, NewError(http.StatusInternalServerError, model.ErrCodeInternalError, "stored preview is corrupt")
	}

	var projectName string
	if p, err := s.projects.GetByID(ctx, b.ProjectID); err == nil {
		projectName = p.Name
	}

	return &PreviewResult{
		BackupID:    b.ID,
		ProjectID:   b.ProjectID,
		ProjectName: projectName,
		JSONKey:     *b.JSONKey,
		Content:     content,
	}, nil
}

type RestoreResult struct {
	URL       string
	BackupID  string
	ProjectID string
	FileSize  int64
}

// Restore authenticates against the owning project's webhook token and
// issues a presigned link for the archive object.
func (s *RetrievalService) Restore(ctx context.Context, id, token, clientIP string) (*RestoreResult, error) {
	if token == "" {
		return nil, NewError(http.StatusUnauthorized, model.ErrCodeAuthMissing, "missing authentication token")
	}

	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.projects.GetByID(ctx, b.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve project for backup %s: %w", id, err)
	}
	if p.WebhookToken != token {
		return nil, NewError(http.StatusForbidden, model.ErrCodeAuthInvalid, "invalid token")
	}
	if p.AllowedIPs != nil && !ipaccess.IsIPAllowed(clientIP, *p.AllowedIPs) {
		return nil, NewError(http.StatusForbidden, model.ErrCodeIPBlocked, "Forbidden")
	}

	url, err := s.store.PresignGet(ctx, b.FileKey, PresignTTLSeconds*time.Second)
	if err != nil {
		s.logger.Error().Err(err).Str("key", b.FileKey).Msg("presign restore link")
		return nil, NewError(http.StatusInternalServerError, model.ErrCodeInternalError, "failed to create restore link")
	}

	return &RestoreResult{URL: url, BackupID: b.ID, ProjectID: b.ProjectID, FileSize: b.FileSize}, nil
}

type DownloadResult struct {
	URL       string
	ProjectID string
	FileKey   string
	FileSize  int64
}

// Download issues a presigned link for the archive without authentication;
// the route is only reachable from the internal UI.
func (s *RetrievalService) Download(ctx context.Context, id string) (*DownloadResult, error) {
	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	url, err := s.store.PresignGet(ctx, b.FileKey, PresignTTLSeconds*time.Second)
	if err != nil {
		s.logger.Error().Err(err).Str("key", b.FileKey).Msg("presign download link")
		return nil, NewError(http.StatusInternalServerError, model.ErrCodeInternalError, "failed to create download link")
	}
	return &DownloadResult{URL: url, ProjectID: b.ProjectID, FileKey: b.FileKey, FileSize: b.FileSize}, nil
}

// Delete removes the metadata row first, then cleans up storage on a
// best-effort basis. A storage failure leaves orphaned objects but never
// fails the delete.
func (s *RetrievalService) Delete(ctx context.Context, id string) error {
	b, err := s.backups.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.backups.Delete(ctx, id); err != nil {
		return err
	}

	keys := []string{b.FileKey}
	if b.JSONKey != nil {
		keys = append(keys, *b.JSONKey)
	}
	deleted, err := s.store.DeleteMany(ctx, keys)
	if err != nil || deleted < len(keys) {
		s.logger.Warn().Err(err).Str("backup_id", id).Int("requested", len(keys)).Int("deleted", deleted).
			Msg("best-effort storage cleanup incomplete")
	}
	return nil
}

// DeleteBatch removes up to 50 backups. The returned count is the number of
// metadata rows removed; storage cleanup is best-effort and may leave
// orphans behind.
func (s *RetrievalService) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	var keys []string
	for _, id := range ids {
		b, err := s.backups.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return deleted, err
		}
		if err := s.backups.Delete(ctx, id); err != nil {
			return deleted, err
		}
		deleted++
		keys = append(keys, b.FileKey)
		if b.JSONKey != nil {
			keys = append(keys, *b.JSONKey)
		}
	}

	if len(keys) > 0 {
		removed, err := s.store.DeleteMany(ctx, keys)
		if err != nil || removed < len(keys) {
			s.logger.Warn().Err(err).Int("requested", len(keys)).Int("removed", removed).
				Msg("best-effort storage cleanup incomplete")
		}
	}
	return deleted, nil
}
