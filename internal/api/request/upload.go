package request

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNoFile is returned when the multipart form has no file part.
var ErrNoFile = errors.New("no file uploaded")

// uploadMemoryLimit is how much of the multipart body is held in memory
// before spilling to temp files.
const uploadMemoryLimit = 10 << 20

// UploadFile is one file part read fully into memory. Size caps are
// enforced by the ingestion service, so reading stops one byte past the
// largest acceptable upload.
type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReadUploadFile pulls the named file part out of a multipart form.
func ReadUploadFile(r *http.Request, field string, maxBytes int64) (*UploadFile, error) {
	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	f, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, ErrNoFile
		}
		return nil, fmt.Errorf("read file part: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	return &UploadFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
