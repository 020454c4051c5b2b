package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sitemedic/sitemedic/pkg/storage"
)

// FileStore persists one JSON file per token under a directory. Writes are
// temp-file-and-rename so the polling client never reads a torn record.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("progress directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create progress directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Write overwrites the record for token.
func (s *FileStore) Write(token string, rec Record) error {
	if err := storage.ValidateToken(token); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode progress record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, token+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp progress file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write progress record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close progress record: %w", err)
	}

	if err := os.Rename(tmpName, s.path(token)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit progress record: %w", err)
	}
	return nil
}

// Read returns the current record for token, or an error wrapping
// storage.ErrNotFound when the record does not exist yet.
func (s *FileStore) Read(token string) (Record, error) {
	if err := storage.ValidateToken(token); err != nil {
		return Record{}, err
	}

	data, err := os.ReadFile(s.path(token))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, storage.NewNotFoundError("progress", token)
		}
		return Record{}, fmt.Errorf("read progress record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode progress record: %w", err)
	}
	return rec, nil
}

func (s *FileStore) path(token string) string {
	return filepath.Join(s.dir, token+".json")
}
