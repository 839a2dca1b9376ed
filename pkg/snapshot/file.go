package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const fileBackend = "file"

// FileStore keeps one JSON file per key under a directory. Writes are
// atomic: the payload is written to a temp file, synced and renamed.
type FileStore struct {
	dir string
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on first save.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("dir is required")
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file that holds the snapshot for key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	Operations.WithLabelValues(fileBackend, "save").Inc()

	if err := writeFileAtomic(s.Path(key), data, 0o644); err != nil {
		Errors.WithLabelValues(fileBackend, "save").Inc()
		return fmt.Errorf("write snapshot: %w", err)
	}
	Size.WithLabelValues(fileBackend).Observe(float64(len(data)))
	return nil
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	Operations.WithLabelValues(fileBackend, "load").Inc()

	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		Errors.WithLabelValues(fileBackend, "load").Inc()
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	Operations.WithLabelValues(fileBackend, "delete").Inc()

	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		Errors.WithLabelValues(fileBackend, "delete").Inc()
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
