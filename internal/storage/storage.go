// Package storage writes uploaded media to an object store and returns its public URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/sddion/projectzg/internal/config"
	"go.uber.org/zap"
)

// Logical buckets used by the media service.
const (
	BucketAvatars = "avatars"
	BucketPosts   = "posts"
	BucketStories = "stories"
)

var (
	// ErrInvalidObjectPath indicates a bucket or path that would escape its namespace.
	ErrInvalidObjectPath = errors.New("storage: invalid object path")
	errUnknownBackend    = errors.New("storage: unknown backend")
)

// ObjectStore persists objects and resolves their public URL.
type ObjectStore interface {
	Store(ctx context.Context, bucket string, objectPath string, body []byte, contentType string) (string, error)
}

// Open builds the object store selected by the configuration.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (ObjectStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case config.StorageBackendLocal:
		return NewLocalStore(cfg.LocalPath, cfg.PublicBaseURL)
	case config.StorageBackendS3:
		return NewS3Store(S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UseSSL:          cfg.S3.UseSSL,
			PublicBaseURL:   cfg.PublicBaseURL,
		}, logger)
	case config.StorageBackendGCS:
		return NewGCSStore(ctx, GCSConfig{
			Bucket:          cfg.GCS.Bucket,
			CredentialsFile: cfg.GCS.CredentialsFile,
			PublicBaseURL:   cfg.PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, cfg.Backend)
	}
}

// objectKey joins a logical bucket and an object path into a single key, rejecting traversal.
func objectKey(bucket string, objectPath string) (string, error) {
	bucket = strings.Trim(strings.TrimSpace(bucket), "/")
	objectPath = strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if bucket == "" || objectPath == "" || strings.Contains(bucket, "/") {
		return "", ErrInvalidObjectPath
	}
	cleaned := path.Clean(objectPath)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidObjectPath
	}
	return bucket + "/" + cleaned, nil
}

func publicURL(baseURL string, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + key
}
