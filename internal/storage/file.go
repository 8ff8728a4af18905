package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// File persists each key as one JSON file under a data directory. Keys are
// slash-scoped ("history/example.com"); path traversal characters are
// sanitized out of the on-disk name.
type File struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

// DefaultDir resolves the default data directory (~/.consentinel).
func DefaultDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".consentinel"), nil
}

// NewFile creates a file store rooted at dir, creating it when missing. An
// empty dir selects the default data directory.
func NewFile(dir string, logger *zap.Logger) (*File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return &File{dir: dir, logger: logger.Named("FileStorage")}, nil
}

// pathFor maps a key to its on-disk file.
func (f *File) pathFor(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_").Replace(key)
	return filepath.Join(f.dir, safe+".json")
}

// Get returns the stored value and whether the key existed.
func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return raw, true, nil
}

// Set stores the value under key atomically (write to temp, rename).
func (f *File) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.pathFor(key)
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}
