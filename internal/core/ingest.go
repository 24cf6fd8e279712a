package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backuprelay/internal/archive"
	"github.com/edvin/backuprelay/internal/model"
	"github.com/edvin/backuprelay/internal/platform"
)

// MaxUploadBytes caps every uploaded archive.
const MaxUploadBytes = 50 << 20

const (
	contentTypeJSON = "application/json"
	contentTypeZip  = "application/zip"
)

// zipContentTypes are the standard and compatibility MIME strings clients
// send for zip archives.
var zipContentTypes = map[string]bool{
	"application/zip":              true,
	"application/x-zip":            true,
	"application/x-zip-compressed": true,
	"multipart/x-zip":              true,
}

type fileKind int

const (
	kindUnknown fileKind = iota
	kindJSON
	kindZip
)

// sniffKind classifies an upload by content type (with any ;charset=...
// suffix stripped) or, failing that, filename extension.
func sniffKind(contentType, filename string) fileKind {
	ct, _, _ := strings.Cut(contentType, ";")
	ct = strings.TrimSpace(strings.ToLower(ct))

	switch {
	case ct == contentTypeJSON || strings.HasSuffix(filename, ".json"):
		return kindJSON
	case zipContentTypes[ct] || strings.HasSuffix(filename, ".zip"):
		return kindZip
	}
	return kindUnknown
}

// storageTimestamp renders t as a filesystem-safe millisecond UTC stamp:
// colons and periods would break key handling downstream.
func storageTimestamp(t time.Time) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format(sqlTimeFormat))
}

func archiveKey(projectID, timestamp, ext string) string {
	return fmt.Sprintf("backups/%s/%s.%s", projectID, timestamp, ext)
}

func previewKey(projectID, timestamp string) string {
	return fmt.Sprintf("previews/%s/%s.json", projectID, timestamp)
}

// UploadInput is one validated multipart upload, after authentication and
// IP checks have passed at the boundary.
type UploadInput struct {
	Project     *model.Project
	Filename    string
	ContentType string
	Data        []byte
	Environment string
	Tag         string
	SenderIP    string
}

// IngestService turns uploads into stored objects plus a backup row.
type IngestService struct {
	backups *BackupService
	store   ObjectStore
	logger  zerolog.Logger
}

func NewIngestService(backups *BackupService, store ObjectStore, logger zerolog.Logger) *IngestService {
	return &IngestService{
		backups: backups,
		store:   store,
		logger:  logger.With().Str("component", "ingest").Logger(),
	}
}

// IngestWebhook stores an agent upload byte-for-byte under its derived key.
// JSON payloads get a second verbatim copy under a preview key so the read
// path never has to decompress anything.
func (s *IngestService) IngestWebhook(ctx context.Context, in UploadInput) (*model.Backup, error) {
	if err := checkSize(in.Data, http.StatusBadRequest); err != nil {
		return nil, err
	}
	kind := sniffKind(in.ContentType, in.Filename)
	if kind == kindUnknown {
		return nil, NewError(http.StatusBadRequest, model.ErrCodeFileTypeInvalid, "only JSON and ZIP files are accepted")
	}
	env, err := parseEnvironment(in.Environment)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ts := storageTimestamp(now)

	backup := &model.Backup{
		ID:          platform.NewID(),
		ProjectID:   in.Project.ID,
		Environment: env,
		SenderIP:    in.SenderIP,
		Tag:         optional(in.Tag),
		FileSize:    int64(len(in.Data)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var writes []objectWrite
	if kind == kindJSON {
		backup.FileKey = archiveKey(in.Project.ID, ts, "json")
		jk := previewKey(in.Project.ID, ts)
		backup.JSONKey = &jk
		backup.IsSingleJSON = true
		writes = []objectWrite{
			{key: backup.FileKey, contentType: contentTypeJSON, data: in.Data},
			{key: jk, contentType: contentTypeJSON, data: in.Data},
		}
	} else {
		backup.FileKey = archiveKey(in.Project.ID, ts, "zip")
		writes = []objectWrite{
			{key: backup.FileKey, contentType: contentTypeZip, data: in.Data},
		}
	}

	if err := s.persist(ctx, backup, writes); err != nil {
		return nil, err
	}
	return backup, nil
}

// IngestManual handles uploads from the internal UI. Raw JSON is compressed
// into a single-entry zip for archival, keeping the raw bytes as the
// preview; a zip is stored untouched and left for later extraction.
func (s *IngestService) IngestManual(ctx context.Context, in UploadInput) (*model.Backup, error) {
	if err := checkSize(in.Data, http.StatusRequestEntityTooLarge); err != nil {
		return nil, err
	}
	kind := sniffKind(in.ContentType, in.Filename)
	if kind == kindUnknown {
		return nil, NewError(http.StatusBadRequest, model.ErrCodeFileTypeInvalid, "unsupported file type: upload a .json or .zip file")
	}

	now := time.Now().UTC()
	ts := storageTimestamp(now)

	backup := &model.Backup{
		ID:        platform.NewID(),
		ProjectID: in.Project.ID,
		SenderIP:  model.SenderManualUpload,
		Tag:       optional(in.Tag),
		FileKey:   archiveKey(in.Project.ID, ts, "zip"),
		CreatedAt: now,
		UpdatedAt: now,
	}

	var writes []objectWrite
	if kind == kindJSON {
		zipped, err := archive.CompressJSON(in.Filename, in.Data)
		if err != nil {
			s.logger.Error().Err(err).Str("project_id", in.Project.ID).Msg("compress upload")
			return nil, NewError(http.StatusInternalServerError, model.ErrCodeInternalError, "failed to package upload")
		}
		jk := previewKey(in.Project.ID, ts)
		backup.JSONKey = &jk
		backup.IsSingleJSON = true
		backup.FileSize = int64(len(zipped))
		writes = []objectWrite{
			{key: backup.FileKey, contentType: contentTypeZip, data: zipped},
			{key: jk, contentType: contentTypeJSON, data: in.Data},
		}
	} else {
		backup.FileSize = int64(len(in.Data))
		writes = []objectWrite{
			{key: backup.FileKey, contentType: contentTypeZip, data: in.Data},
		}
	}

	if err := s.persist(ctx, backup, writes); err != nil {
		return nil, err
	}
	return backup, nil
}

type objectWrite struct {
	key         string
	contentType string
	data        []byte
}

// persist is the single seam for the two-step commit: object writes happen
// in order, then the metadata insert. An insert failure after a successful
// write orphans the object; a reconciliation sweep would hook in here.
func (s *IngestService) persist(ctx context.Context, b *model.Backup, writes []objectWrite) error {
	for _, w := range writes {
		if err := s.store.Put(ctx, w.key, w.data, w.contentType); err != nil {
			s.logger.Error().Err(err).Str("key", w.key).Msg("store backup object")
			return NewError(http.StatusInternalServerError, model.ErrCodeUploadFailed, "failed to store backup")
		}
	}
	if err := s.backups.Insert(ctx, b); err != nil {
		s.logger.Error().Err(err).Str("backup_id", b.ID).Str("file_key", b.FileKey).Msg("insert backup metadata")
		return NewError(http.StatusInternalServerError, model.ErrCodeDBFailed, "failed to save backup metadata")
	}
	return nil
}

func checkSize(data []byte, tooLargeStatus int) error {
	if len(data) == 0 {
		return NewError(http.StatusBadRequest, model.ErrCodeFileEmpty, "uploaded file is empty")
	}
	if int64(len(data)) > MaxUploadBytes {
		return NewError(tooLargeStatus, model.ErrCodeFileTooLarge, "file exceeds the 50MB limit")
	}
	return nil
}

func parseEnvironment(env string) (*string, error) {
	if env == "" {
		return nil, nil
	}
	if !model.ValidEnvironment(env) {
		return nil, NewError(http.StatusBadRequest, model.ErrCodeEnvInvalid, "environment must be one of dev, staging, prod, test")
	}
	return &env, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
