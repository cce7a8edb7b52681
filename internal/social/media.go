package social

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sddion/projectzg/internal/apperr"
	"github.com/sddion/projectzg/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxUploadBytes bounds a single uploaded file.
const MaxUploadBytes = 5 * 1024 * 1024

var (
	imageTypes = map[string]string{
		"image/jpeg": "jpg",
		"image/png":  "png",
		"image/gif":  "gif",
		"image/webp": "webp",
	}
	videoTypes = map[string]string{
		"video/mp4":       "mp4",
		"video/webm":      "webm",
		"video/quicktime": "mov",
	}
)

// MediaServiceConfig describes the dependencies of the media service.
type MediaServiceConfig struct {
	Database   *gorm.DB
	Store      storage.ObjectStore
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// MediaService validates uploads and writes them to the object store.
type MediaService struct {
	db         *gorm.DB
	store      storage.ObjectStore
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// Upload is the result of a stored file.
type Upload struct {
	URL       string `json:"url"`
	Path      string `json:"path"`
	MimeType  string `json:"mime_type"`
	MediaType string `json:"media_type"`
}

// NewMediaService constructs the media service.
func NewMediaService(cfg MediaServiceConfig) (*MediaService, error) {
	if cfg.Store == nil {
		return nil, upstreamError(opMediaServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, upstreamError(opMediaServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &MediaService{
		db:         cfg.Database,
		store:      cfg.Store,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Upload sniffs the content type of body, checks it against the bucket's allowlist and stores it under the
// owner's folder.
func (m *MediaService) Upload(ctx context.Context, ownerID string, bucket string, filename string, body []byte) (Upload, error) {
	allowed, typeMessage, ok := allowedTypes(bucket)
	if !ok {
		return Upload{}, newServiceError(apperr.KindValidation, opUploadMedia, "unknown_bucket", MessageUnknownBucket)
	}
	if len(body) == 0 {
		return Upload{}, newServiceError(apperr.KindValidation, opUploadMedia, "empty_file", MessageMediaRequired)
	}
	if len(body) > MaxUploadBytes {
		return Upload{}, newServiceError(apperr.KindValidation, opUploadMedia, "file_too_large", MessageFileTooLarge)
	}

	detected := mimetype.Detect(body)
	mimeType := strings.ToLower(strings.SplitN(detected.String(), ";", 2)[0])
	extension, ok := allowed[mimeType]
	if !ok {
		return Upload{}, newServiceError(apperr.KindValidation, opUploadMedia, "invalid_type", typeMessage)
	}

	objectPath, err := m.objectPath(ownerID, bucket, extension)
	if err != nil {
		m.logError("path_generation_failed", err)
		return Upload{}, upstreamError(opUploadMedia, "path_generation_failed", err)
	}
	url, err := m.store.Store(ctx, bucket, objectPath, body, mimeType)
	if err != nil {
		m.logError("store_failed", err, zap.String("bucket", bucket), zap.String("path", objectPath))
		return Upload{}, apperr.New(apperr.KindUpstream, opUploadMedia, "store_failed", MessageUploadFailed, err)
	}

	m.record(ctx, ownerID, bucket, objectPath, filename, int64(len(body)), mimeType)

	mediaType := "image"
	if _, video := videoTypes[mimeType]; video {
		mediaType = "video"
	}
	return Upload{URL: url, Path: objectPath, MimeType: mimeType, MediaType: mediaType}, nil
}

func allowedTypes(bucket string) (map[string]string, string, bool) {
	switch bucket {
	case storage.BucketAvatars:
		return imageTypes, MessageInvalidAvatarType, true
	case storage.BucketPosts, storage.BucketStories:
		merged := make(map[string]string, len(imageTypes)+len(videoTypes))
		for mimeType, extension := range imageTypes {
			merged[mimeType] = extension
		}
		for mimeType, extension := range videoTypes {
			merged[mimeType] = extension
		}
		return merged, MessageInvalidMediaType, true
	default:
		return nil, "", false
	}
}

// objectPath is <owner>/avatar_<ms>.<ext> for avatars and <owner>/<ms>_<random>.<ext> otherwise.
func (m *MediaService) objectPath(ownerID, bucket, extension string) (string, error) {
	millis := m.clock().UTC().UnixMilli()
	if bucket == storage.BucketAvatars {
		return fmt.Sprintf("%s/avatar_%d.%s", ownerID, millis, extension), nil
	}
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d_%s.%s", ownerID, millis, hex.EncodeToString(suffix), extension), nil
}

// record writes the bookkeeping row. The upload already succeeded, so failures are only logged.
func (m *MediaService) record(ctx context.Context, ownerID, bucket, objectPath, filename string, size int64, mimeType string) {
	if m.db == nil {
		return
	}
	id, err := m.idProvider.NewID()
	if err != nil {
		m.logger.Warn("media record skipped", zap.String("reason", "id_generation_failed"), zap.Error(err))
		return
	}
	name := strings.TrimSpace(filename)
	if name == "" {
		name = objectPath[strings.LastIndex(objectPath, "/")+1:]
	}
	row := Media{
		ID:         id,
		UserID:     ownerID,
		BucketName: bucket,
		FilePath:   objectPath,
		FileName:   name,
		FileSize:   size,
		MimeType:   mimeType,
		IsPublic:   true,
		CreatedAt:  m.clock().UTC(),
	}
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		m.logger.Warn("media record skipped", zap.String("reason", "insert_failed"), zap.String("path", objectPath), zap.Error(err))
	}
}

func (m *MediaService) logError(reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", opUploadMedia),
		zap.String("reason", reason),
		zap.Error(err),
	}
	m.logger.Error("media service error", append(attrs, fields...)...)
}
