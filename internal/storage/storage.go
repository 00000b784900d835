package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// JSONStorage keeps a snapshot in a single JSON file.
type JSONStorage struct {
	mu       sync.Mutex
	filepath string
}

// NewJSONStorage returns storage at path, creating its directory.
func NewJSONStorage(path string) (*JSONStorage, error) {
	if path == "" {
		return nil, errors.New("storage path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}
	return &JSONStorage{filepath: path}, nil
}

// Path returns the snapshot file path.
func (s *JSONStorage) Path() string {
	return s.filepath
}

// Save writes v to a temp file and renames it over the snapshot, so readers
// never see a partial write.
func (s *JSONStorage) Save(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpFile, s.filepath); err != nil {
		_ = os.Remove(tmpFile)
		return err
	}
	return nil
}

// Load decodes the snapshot into v. It returns ErrNoSnapshot if the file
// does not exist.
func (s *JSONStorage) Load(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoSnapshot
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", s.filepath, err)
	}
	return nil
}
