package social

import (
	"time"

	"github.com/sddion/projectzg/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	FeedPageSize          = 20
	MaxMediaPerPost       = 4
	StoryTTL              = 24 * time.Hour
	NotificationWindow    = 7 * 24 * time.Hour
	NotificationPageSize  = 50
	TaggedPostsLimit      = 50
	defaultStoryMediaType = "image"
)

var noOpLogger = zap.NewNop()

// NotificationPublisher receives notifications after they are stored.
type NotificationPublisher interface {
	PublishNotification(notification Notification)
}

// ServiceConfig describes the dependencies of the social service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Profiles   *users.Service
	Publisher  NotificationPublisher
	Logger     *zap.Logger
}

// Service implements posts, comments, reactions, the follow graph, stories and notifications.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	profiles   *users.Service
	publisher  NotificationPublisher
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, upstreamError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, upstreamError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Profiles == nil {
		return nil, upstreamError(opServiceNew, "missing_profiles", errMissingProfiles)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		profiles:   cfg.Profiles,
		publisher:  cfg.Publisher,
		logger:     logger,
	}, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("social service error", attrs...)
}

// logDegraded records a failed side effect that the request survives.
func (s *Service) logDegraded(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Warn("social side effect failed", attrs...)
}
