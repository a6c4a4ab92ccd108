package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore writes one JSON file per entry, atomically via temp file + rename,
// so a crash never leaves a half-written record.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("journal directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

func (s *FileStore) Load(ctx context.Context, id uuid.UUID) (Entry, error) {
	return s.read(s.path(id))
}

func (s *FileStore) read(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("failed to read journal file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to parse journal file %s: %w", filepath.Base(path), err)
	}
	return entry, nil
}

func (s *FileStore) Save(ctx context.Context, entry Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	path := s.path(entry.ID)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write journal temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename journal temp file: %w", err)
	}
	return nil
}

func (s *FileStore) ListOpen(ctx context.Context) ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal directory: %w", err)
	}

	var open []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := s.read(filepath.Join(s.dir, f.Name()))
		if err != nil {
			return nil, err
		}
		if !entry.Status.Terminal() {
			open = append(open, entry)
		}
	}
	sortByCreation(open)
	return open, nil
}
