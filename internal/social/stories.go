package social

import (
	"context"
	"strings"

	"github.com/sddion/projectzg/internal/apperr"
	"go.uber.org/zap"
)

// StoryDraft is the input of CreateStory.
type StoryDraft struct {
	MediaURL  string
	Caption   string
	MediaType string
}

// CreateStory publishes a story that expires after StoryTTL.
func (s *Service) CreateStory(ctx context.Context, ownerID string, draft StoryDraft) (Story, error) {
	mediaURL := strings.TrimSpace(draft.MediaURL)
	if mediaURL == "" {
		return Story{}, newServiceError(apperr.KindValidation, opCreateStory, "missing_media", MessageMediaRequired)
	}
	mediaType := strings.TrimSpace(draft.MediaType)
	if mediaType == "" {
		mediaType = defaultStoryMediaType
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateStory, "id_generation_failed", err)
		return Story{}, upstreamError(opCreateStory, "id_generation_failed", err)
	}
	now := s.now()
	story := Story{
		ID:        id,
		UserID:    ownerID,
		MediaURL:  mediaURL,
		Caption:   strings.TrimSpace(draft.Caption),
		MediaType: mediaType,
		CreatedAt: now,
		ExpiresAt: now.Add(StoryTTL),
	}
	if err := s.db.WithContext(ctx).Omit("User").Create(&story).Error; err != nil {
		s.logError(opCreateStory, "insert_failed", err, zap.String("user_id", ownerID))
		return Story{}, upstreamError(opCreateStory, "insert_failed", err)
	}
	return story, nil
}

// ActiveStories returns every unexpired story, newest first, with its owner.
func (s *Service) ActiveStories(ctx context.Context) ([]Story, error) {
	return s.stories(ctx, "")
}

// StoriesByUser returns the owner's unexpired stories, newest first.
func (s *Service) StoriesByUser(ctx context.Context, ownerID string) ([]Story, error) {
	return s.stories(ctx, ownerID)
}

func (s *Service) stories(ctx context.Context, ownerID string) ([]Story, error) {
	query := s.db.WithContext(ctx).Preload("User").
		Where("expires_at > ?", s.now()).
		Order("created_at DESC, id DESC")
	if ownerID != "" {
		query = query.Where("user_id = ?", ownerID)
	}
	stories := make([]Story, 0)
	if err := query.Find(&stories).Error; err != nil {
		s.logError(opStories, "select_failed", err, zap.String("user_id", ownerID))
		return nil, upstreamError(opStories, "select_failed", err)
	}
	return stories, nil
}
