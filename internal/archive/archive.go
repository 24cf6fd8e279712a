// Package archive builds and inspects the zip containers that backup
// payloads are stored in.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

var (
	// ErrNoJSONEntries means the archive holds no extractable JSON file.
	ErrNoJSONEntries = errors.New("no JSON files found in archive")
	// ErrEntryTooLarge means the selected JSON entry exceeds the caller's cap.
	ErrEntryTooLarge = errors.New("JSON entry exceeds size limit")
)

// CompressJSON wraps raw JSON bytes in a single-entry zip archive. The entry
// keeps the uploaded filename so extraction can report its origin.
func CompressJSON(filename string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create zip entry %s: %w", filename, err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("write zip entry %s: %w", filename, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractFirstJSON opens zipData and returns the contents of the
// lexicographically first non-directory entry named *.json, along with the
// entry name and the total number of JSON entries found. Selection is by
// name, not size or modification time, so repeated extraction of the same
// archive always yields the same entry.
func ExtractFirstJSON(zipData []byte, maxEntrySize int64) (string, []byte, int, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return "", nil, 0, fmt.Errorf("open zip: %w", err)
	}

	var candidates []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if strings.HasSuffix(f.Name, ".json") {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return "", nil, 0, ErrNoJSONEntries
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })

	selected := candidates[0]
	if selected.UncompressedSize64 > uint64(maxEntrySize) {
		return selected.Name, nil, len(candidates), fmt.Errorf("%w: %s is %d bytes", ErrEntryTooLarge, selected.Name, selected.UncompressedSize64)
	}

	rc, err := selected.Open()
	if err != nil {
		return selected.Name, nil, len(candidates), fmt.Errorf("open zip entry %s: %w", selected.Name, err)
	}
	defer rc.Close()

	// The header size is untrusted, so the read is bounded independently.
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return selected.Name, nil, len(candidates), fmt.Errorf("read zip entry %s: %w", selected.Name, err)
	}
	if int64(len(data)) > maxEntrySize {
		return selected.Name, nil, len(candidates), fmt.Errorf("%w: %s", ErrEntryTooLarge, selected.Name)
	}
	return selected.Name, data, len(candidates), nil
}
