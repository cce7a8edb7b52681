package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"
)

const defaultS3Region = "us-east-1"

// S3Config configures an S3 or S3-compatible (MinIO) store.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	PublicBaseURL   string
}

// S3Store keeps every logical bucket as a key prefix inside one physical bucket.
type S3Store struct {
	client  *s3.S3
	bucket  string
	baseURL string
}

// NewS3Store creates the session and, for custom endpoints, makes sure the bucket exists.
func NewS3Store(cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultS3Region
	}
	awsConfig := &aws.Config{Region: aws.String(region)}
	if cfg.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
		awsConfig.DisableSSL = aws.Bool(!cfg.UseSSL)
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("storage: create aws session: %w", err)
	}
	client := s3.New(sess)

	if cfg.Endpoint != "" {
		if _, err := client.HeadBucket(&s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
			if _, createErr := client.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}); createErr != nil {
				logger.Warn("s3 bucket not available", zap.String("bucket", cfg.Bucket), zap.Error(createErr))
			}
		}
	}

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: s3BaseURL(cfg, region),
	}, nil
}

// Store uploads body under bucket/objectPath.
func (s *S3Store) Store(ctx context.Context, bucket string, objectPath string, body []byte, contentType string) (string, error) {
	key, err := objectKey(bucket, objectPath)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("storage: s3 put object: %w", err)
	}
	return publicURL(s.baseURL, key), nil
}

func s3BaseURL(cfg S3Config, region string) string {
	if cfg.PublicBaseURL != "" {
		return cfg.PublicBaseURL
	}
	if cfg.Endpoint != "" && !strings.Contains(cfg.Endpoint, "amazonaws.com") {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		host := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
		return fmt.Sprintf("%s://%s/%s", scheme, strings.TrimRight(host, "/"), cfg.Bucket)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
}
