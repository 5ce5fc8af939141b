// Package scraper captures source content into the local blob store and
// records one PENDING row per captured file. It never extracts or delivers;
// those stages run later against the rows written here.
package scraper

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BlobStore persists captured bytes under a flat directory. Blob names embed
// the source ID and capture time so repeated fetches of the same filename
// never collide.
type BlobStore struct {
	dir string
}

// NewBlobStore creates the backing directory if needed.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", dir, err)
	}
	return &BlobStore{dir: dir}, nil
}

// Dir returns the blob store root.
func (s *BlobStore) Dir() string { return s.dir }

// Save writes the reader's content as <sourceID>_<unixTime>_<filename> and
// returns the absolute path of the new blob.
func (s *BlobStore) Save(sourceID int64, filename string, r io.Reader) (string, error) {
	name := fmt.Sprintf("%d_%d_%s", sourceID, time.Now().Unix(), sanitizeFilename(filename))
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create blob %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write blob %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close blob %s: %w", path, err)
	}
	return path, nil
}

// sanitizeFilename strips directory components and characters that are
// unsafe in a flat blob directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
