package marker

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"support-feed-worker/internal/models"
)

// Store persists the last processed feed marker. A single writer is assumed.
type Store interface {
	Load() models.Marker
	Save(m models.Marker) error
}

// FileStore keeps the marker as a single line in a text file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load never fails: a missing or unreadable file means "start from the
// beginning the feed currently exposes".
func (s *FileStore) Load() models.Marker {
	f, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Could not read marker file, starting from empty marker", "path", s.path, "error", err)
		}
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			slog.Warn("Could not read marker file, starting from empty marker", "path", s.path, "error", err)
		}
		return ""
	}
	return models.Marker(strings.TrimSpace(scanner.Text()))
}

// Save replaces the file through a temp file + rename so a crash mid-write
// never leaves a truncated marker behind.
func (s *FileStore) Save(m models.Marker) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("marker: ensure dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".marker-*")
	if err != nil {
		return fmt.Errorf("marker: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(string(m)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("marker: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("marker: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("marker: replace %s: %w", s.path, err)
	}
	return nil
}
