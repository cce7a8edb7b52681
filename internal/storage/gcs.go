package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures a Google Cloud Storage store.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	PublicBaseURL   string
}

// GCSStore keeps every logical bucket as a key prefix inside one GCS bucket.
type GCSStore struct {
	client  *gcs.Client
	bucket  string
	baseURL string
}

// NewGCSStore creates the client, using application default credentials when no file is configured.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage: gcs bucket is required")
	}
	options := make([]option.ClientOption, 0, 1)
	if cfg.CredentialsFile != "" {
		options = append(options, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("storage: create gcs client: %w", err)
	}
	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + cfg.Bucket
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

// Store uploads body under bucket/objectPath.
func (s *GCSStore) Store(ctx context.Context, bucket string, objectPath string, body []byte, contentType string) (string, error) {
	key, err := objectKey(bucket, objectPath)
	if err != nil {
		return "", err
	}
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: gcs write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: gcs close: %w", err)
	}
	return publicURL(s.baseURL, key), nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
