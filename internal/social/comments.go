package social

import (
	"context"
	"errors"
	"strings"

	"github.com/sddion/projectzg/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CommentDraft is the input of CreateComment.
type CommentDraft struct {
	Content  string
	ParentID string
}

// Comments returns the threaded comments of a post.
func (s *Service) Comments(ctx context.Context, postID string) (Thread, error) {
	var comments []Comment
	err := s.db.WithContext(ctx).Preload("User").
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		s.logError(opComments, "select_failed", err, zap.String("post_id", postID))
		return Thread{}, upstreamError(opComments, "select_failed", err)
	}

	thread := ComposeThread(comments)
	for _, orphan := range thread.Dropped {
		s.logger.Warn("orphaned reply dropped from thread",
			zap.String("post_id", postID),
			zap.String("comment_id", orphan.ID),
			zap.Stringp("parent_id", orphan.ParentID))
	}
	return thread, nil
}

// CreateComment adds a comment to a post. A parent that is itself a reply is replaced by its top-level ancestor.
func (s *Service) CreateComment(ctx context.Context, authorID string, postID string, draft CommentDraft) (Comment, error) {
	content := strings.TrimSpace(draft.Content)
	if content == "" {
		return Comment{}, newServiceError(apperr.KindValidation, opCreateComment, "empty_comment", MessageEmptyComment)
	}
	db := s.db.WithContext(ctx)
	post, err := s.findPost(db, opCreateComment, postID)
	if err != nil {
		return Comment{}, err
	}

	var parent *Comment
	var ancestorID *string
	if parentID := strings.TrimSpace(draft.ParentID); parentID != "" {
		found, err := s.findComment(db, opCreateComment, parentID, MessageParentNotFound)
		if err != nil {
			return Comment{}, err
		}
		if found.PostID != postID {
			return Comment{}, newServiceError(apperr.KindValidation, opCreateComment, "parent_other_post", MessageParentOtherPost)
		}
		parent = &found
		topLevelID := found.ID
		if found.IsReply() {
			topLevelID = *found.ParentID
		}
		ancestorID = &topLevelID
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateComment, "id_generation_failed", err)
		return Comment{}, upstreamError(opCreateComment, "id_generation_failed", err)
	}
	now := s.now()
	comment := Comment{
		ID:        id,
		PostID:    postID,
		UserID:    authorID,
		Content:   content,
		ParentID:  ancestorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Omit("User").Create(&comment).Error; err != nil {
		s.logError(opCreateComment, "insert_failed", err, zap.String("post_id", postID))
		return Comment{}, upstreamError(opCreateComment, "insert_failed", err)
	}

	if ancestorID != nil {
		s.adjustRepliesCount(ctx, opCreateComment, *ancestorID, 1)
	}
	s.notify(ctx, post.AuthorID, authorID, NotificationComment, &post.ID)
	if parent != nil && parent.UserID != post.AuthorID {
		s.notify(ctx, parent.UserID, authorID, NotificationReply, &post.ID)
	}
	s.notifyMentions(ctx, authorID, content, post.ID)

	return s.reloadComment(ctx, opCreateComment, comment.ID)
}

// UpdateComment edits a comment owned by actorID.
func (s *Service) UpdateComment(ctx context.Context, actorID string, commentID string, content string) (Comment, error) {
	db := s.db.WithContext(ctx)
	comment, err := s.findComment(db, opUpdateComment, commentID, MessageCommentNotFound)
	if err != nil {
		return Comment{}, err
	}
	if comment.UserID != actorID {
		return Comment{}, newServiceError(apperr.KindForbidden, opUpdateComment, "not_owner", MessageEditCommentForbidden)
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Comment{}, newServiceError(apperr.KindValidation, opUpdateComment, "empty_comment", MessageContentRequired)
	}

	updates := map[string]any{
		"content":    trimmed,
		"is_edited":  true,
		"updated_at": s.now(),
	}
	if err := db.Model(&Comment{}).Where("id = ?", commentID).Updates(updates).Error; err != nil {
		s.logError(opUpdateComment, "update_failed", err, zap.String("comment_id", commentID))
		return Comment{}, upstreamError(opUpdateComment, "update_failed", err)
	}
	return s.reloadComment(ctx, opUpdateComment, commentID)
}

// DeleteComment removes a comment owned by actorID and returns the id of its post. Deleting a top-level comment
// removes its replies.
func (s *Service) DeleteComment(ctx context.Context, actorID string, commentID string) (string, error) {
	db := s.db.WithContext(ctx)
	comment, err := s.findComment(db, opDeleteComment, commentID, MessageCommentNotFound)
	if err != nil {
		return "", err
	}
	if comment.UserID != actorID {
		return "", newServiceError(apperr.KindForbidden, opDeleteComment, "not_owner", MessageDeleteCommentForbidden)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if !comment.IsReply() {
			if err := tx.Where("parent_id = ?", commentID).Delete(&Comment{}).Error; err != nil {
				s.logError(opDeleteComment, "replies_delete_failed", err, zap.String("comment_id", commentID))
				return upstreamError(opDeleteComment, "replies_delete_failed", err)
			}
		}
		if err := tx.Where("id = ?", commentID).Delete(&Comment{}).Error; err != nil {
			s.logError(opDeleteComment, "delete_failed", err, zap.String("comment_id", commentID))
			return upstreamError(opDeleteComment, "delete_failed", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if comment.IsReply() {
		s.adjustRepliesCount(ctx, opDeleteComment, *comment.ParentID, -1)
	}
	return comment.PostID, nil
}

// adjustRepliesCount moves the denormalized reply counter. It never fails the caller.
func (s *Service) adjustRepliesCount(ctx context.Context, operation string, commentID string, delta int) {
	expression := gorm.Expr("replies_count + ?", delta)
	if delta < 0 {
		expression = gorm.Expr("CASE WHEN replies_count + ? < 0 THEN 0 ELSE replies_count + ? END", delta, delta)
	}
	err := s.db.WithContext(ctx).Model(&Comment{}).
		Where("id = ?", commentID).
		UpdateColumn("replies_count", expression).Error
	if err != nil {
		s.logDegraded(operation, "replies_count_failed", err, zap.String("comment_id", commentID))
	}
}

func (s *Service) findComment(query *gorm.DB, operation, commentID, notFoundMessage string) (Comment, error) {
	var comment Comment
	err := query.Where("id = ?", commentID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, newServiceError(apperr.KindNotFound, operation, "comment_not_found", notFoundMessage)
	}
	if err != nil {
		s.logError(operation, "comment_select_failed", err, zap.String("comment_id", commentID))
		return Comment{}, upstreamError(operation, "comment_select_failed", err)
	}
	return comment, nil
}

func (s *Service) reloadComment(ctx context.Context, operation string, commentID string) (Comment, error) {
	var comment Comment
	err := s.db.WithContext(ctx).Preload("User").Where("id = ?", commentID).Take(&comment).Error
	if err != nil {
		s.logError(operation, "reload_failed", err, zap.String("comment_id", commentID))
		return Comment{}, upstreamError(operation, "reload_failed", err)
	}
	return comment, nil
}
