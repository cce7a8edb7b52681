package social

import (
	"context"
	"errors"
	"strings"

	"github.com/sddion/projectzg/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PostDraft is the input of CreatePost. Media must already be uploaded.
type PostDraft struct {
	Content   string
	MediaURLs []string
}

// PostEdit is the input of UpdatePost. A nil MediaURLs keeps the current media.
type PostEdit struct {
	Content   string
	MediaURLs *[]string
}

// CreatePost stores a post for authorID and notifies mentioned users.
func (s *Service) CreatePost(ctx context.Context, authorID string, draft PostDraft) (Post, error) {
	content := strings.TrimSpace(draft.Content)
	mediaURLs := compactURLs(draft.MediaURLs)
	if content == "" && len(mediaURLs) == 0 {
		return Post{}, newServiceError(apperr.KindValidation, opCreatePost, "empty_post", MessageContentOrMediaRequired)
	}
	if len(mediaURLs) > MaxMediaPerPost {
		return Post{}, newServiceError(apperr.KindValidation, opCreatePost, "too_many_media", MessageTooManyMedia)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreatePost, "id_generation_failed", err)
		return Post{}, upstreamError(opCreatePost, "id_generation_failed", err)
	}
	now := s.now()
	post := Post{
		ID:          id,
		AuthorID:    authorID,
		ContentText: content,
		MediaURLs:   datatypes.JSONSlice[string](mediaURLs),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Omit("Author").Create(&post).Error; err != nil {
		s.logError(opCreatePost, "insert_failed", err, zap.String("user_id", authorID))
		return Post{}, upstreamError(opCreatePost, "insert_failed", err)
	}

	s.notifyMentions(ctx, authorID, content, post.ID)
	return s.reloadPost(ctx, opCreatePost, post)
}

// PostByID returns the post with its author.
func (s *Service) PostByID(ctx context.Context, postID string) (Post, error) {
	return s.findPost(s.db.WithContext(ctx).Preload("Author"), opPostByID, postID)
}

// UpdatePost edits a post owned by actorID. Existence and ownership are checked before the payload.
func (s *Service) UpdatePost(ctx context.Context, actorID string, postID string, edit PostEdit) (Post, error) {
	post, err := s.findPost(s.db.WithContext(ctx), opUpdatePost, postID)
	if err != nil {
		return Post{}, err
	}
	if post.AuthorID != actorID {
		return Post{}, newServiceError(apperr.KindForbidden, opUpdatePost, "not_owner", MessageEditPostForbidden)
	}

	content := strings.TrimSpace(edit.Content)
	mediaURLs := []string(post.MediaURLs)
	if edit.MediaURLs != nil {
		mediaURLs = compactURLs(*edit.MediaURLs)
	}
	if content == "" && len(mediaURLs) == 0 {
		return Post{}, newServiceError(apperr.KindValidation, opUpdatePost, "empty_post", MessageContentRequired)
	}
	if len(mediaURLs) > MaxMediaPerPost {
		return Post{}, newServiceError(apperr.KindValidation, opUpdatePost, "too_many_media", MessageTooManyMedia)
	}

	updates := map[string]any{
		"content_text": content,
		"media_urls":   datatypes.JSONSlice[string](mediaURLs),
		"is_edited":    true,
		"updated_at":   s.now(),
	}
	if err := s.db.WithContext(ctx).Model(&Post{}).Where("id = ?", postID).Updates(updates).Error; err != nil {
		s.logError(opUpdatePost, "update_failed", err, zap.String("post_id", postID))
		return Post{}, upstreamError(opUpdatePost, "update_failed", err)
	}
	return s.reloadPost(ctx, opUpdatePost, post)
}

// DeletePost removes a post owned by actorID together with its comments, reactions and notifications.
func (s *Service) DeletePost(ctx context.Context, actorID string, postID string) error {
	post, err := s.findPost(s.db.WithContext(ctx), opDeletePost, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != actorID {
		return newServiceError(apperr.KindForbidden, opDeletePost, "not_owner", MessageDeletePostForbidden)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cascades := []struct {
			reason string
			model  any
		}{
			{"notifications_delete_failed", &Notification{}},
			{"reactions_delete_failed", &Reaction{}},
			{"comments_delete_failed", &Comment{}},
		}
		for _, cascade := range cascades {
			if err := tx.Where("post_id = ?", postID).Delete(cascade.model).Error; err != nil {
				s.logError(opDeletePost, cascade.reason, err, zap.String("post_id", postID))
				return upstreamError(opDeletePost, cascade.reason, err)
			}
		}
		if err := tx.Where("id = ?", postID).Delete(&Post{}).Error; err != nil {
			s.logError(opDeletePost, "post_delete_failed", err, zap.String("post_id", postID))
			return upstreamError(opDeletePost, "post_delete_failed", err)
		}
		return nil
	})
}

func (s *Service) findPost(query *gorm.DB, operation string, postID string) (Post, error) {
	var post Post
	err := query.Where("id = ?", postID).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, newServiceError(apperr.KindNotFound, operation, "post_not_found", MessagePostNotFound)
	}
	if err != nil {
		s.logError(operation, "post_select_failed", err, zap.String("post_id", postID))
		return Post{}, upstreamError(operation, "post_select_failed", err)
	}
	return post, nil
}

func (s *Service) reloadPost(ctx context.Context, operation string, post Post) (Post, error) {
	var reloaded Post
	err := s.db.WithContext(ctx).Preload("Author").Where("id = ?", post.ID).Take(&reloaded).Error
	if err != nil {
		s.logError(operation, "reload_failed", err, zap.String("post_id", post.ID))
		return Post{}, upstreamError(operation, "reload_failed", err)
	}
	return reloaded, nil
}

func compactURLs(urls []string) []string {
	compacted := make([]string, 0, len(urls))
	for _, url := range urls {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			compacted = append(compacted, trimmed)
		}
	}
	return compacted
}
