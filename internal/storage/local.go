package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes objects below a directory served by the API under its public base URL.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore constructs a LocalStore rooted at root.
func NewLocalStore(root string, baseURL string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: local root is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("storage: public base url is required")
	}
	return &LocalStore{root: root, baseURL: baseURL}, nil
}

// Root returns the directory objects are written to.
func (s *LocalStore) Root() string {
	return s.root
}

// Store writes body to disk and returns its public URL.
func (s *LocalStore) Store(ctx context.Context, bucket string, objectPath string, body []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := objectKey(bucket, objectPath)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("storage: create directory: %w", err)
	}
	if err := os.WriteFile(target, body, 0o644); err != nil {
		return "", fmt.Errorf("storage: write object: %w", err)
	}
	return publicURL(s.baseURL, key), nil
}
