package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore is a file-backed Store. Each token maps to one JSON file under
// the store directory. Writes go through a temp file and rename so readers
// never observe a half-written value.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Get reads and unmarshals the value stored for token.
func (s *LocalStore) Get(token string, v any) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	data, err := os.ReadFile(s.path(token))
	if err != nil {
		if os.IsNotExist(err) {
			return NewNotFoundError("state", token)
		}
		return fmt.Errorf("read state %q: %w", token, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode state %q: %w", token, err)
	}
	return nil
}

// Put marshals v and overwrites the value stored for token.
func (s *LocalStore) Put(token string, v any) error {
	if err := ValidateToken(token); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state %q: %w", token, err)
	}

	tmp, err := os.CreateTemp(s.dir, token+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write state %q: %w", token, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close state %q: %w", token, err)
	}

	if err := os.Rename(tmpName, s.path(token)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit state %q: %w", token, err)
	}
	return nil
}

// Delete removes the value stored for token. Absent tokens are not an error.
func (s *LocalStore) Delete(token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}
	if err := os.Remove(s.path(token)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete state %q: %w", token, err)
	}
	return nil
}

func (s *LocalStore) path(token string) string {
	return filepath.Join(s.dir, token+".json")
}
