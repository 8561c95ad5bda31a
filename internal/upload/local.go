package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// LocalStore writes objects under a directory that the API serves at URLPrefix
type LocalStore struct {
	dir       string
	urlPrefix string
}

// NewLocalStore creates the directory if needed
func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, urlPrefix: urlPrefix}, nil
}

// Dir returns the root directory
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save writes data to dir/key and returns urlPrefix/key
func (s *LocalStore) Save(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return path.Join(s.urlPrefix, key), nil
}
