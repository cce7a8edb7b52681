package social

import (
	"context"
	"strings"

	"github.com/sddion/projectzg/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// ToggleLike flips the like of userID on a post and reports the new state.
func (s *Service) ToggleLike(ctx context.Context, userID string, postID string) (bool, error) {
	return s.toggleReaction(ctx, opToggleLike, userID, postID, ReactionLike)
}

// ToggleBookmark flips the bookmark of userID on a post and reports the new state.
func (s *Service) ToggleBookmark(ctx context.Context, userID string, postID string) (bool, error) {
	return s.toggleReaction(ctx, opToggleBookmark, userID, postID, ReactionBookmark)
}

func (s *Service) toggleReaction(ctx context.Context, operation, userID, postID, kind string) (bool, error) {
	post, err := s.findPost(s.db.WithContext(ctx), operation, postID)
	if err != nil {
		return false, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return false, upstreamError(operation, "id_generation_failed", err)
	}
	row := &Reaction{ID: id, PostID: postID, UserID: userID, Type: kind, CreatedAt: s.now()}
	on, inserted, err := s.toggleRow(ctx, operation, &Reaction{}, row,
		"post_id = ? AND user_id = ? AND type = ?", postID, userID, kind)
	if err != nil {
		return false, err
	}
	if inserted && kind == ReactionLike {
		s.notify(ctx, post.AuthorID, userID, NotificationLike, &post.ID)
	}
	return on, nil
}

// ToggleFollow flips the follow edge from actorID to targetID and reports whether actorID now follows.
func (s *Service) ToggleFollow(ctx context.Context, actorID string, targetID string) (bool, error) {
	targetID = strings.TrimSpace(targetID)
	if actorID == targetID {
		return false, newServiceError(apperr.KindValidation, opToggleFollow, "self_follow", MessageCannotFollowSelf)
	}
	if _, err := s.profiles.ProfileByID(ctx, targetID); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return false, newServiceError(apperr.KindNotFound, opToggleFollow, "target_not_found", MessageUserNotFound)
		}
		return false, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opToggleFollow, "id_generation_failed", err)
		return false, upstreamError(opToggleFollow, "id_generation_failed", err)
	}
	row := &Follow{ID: id, FollowerID: actorID, FollowingID: targetID, CreatedAt: s.now()}
	following, inserted, err := s.toggleRow(ctx, opToggleFollow, &Follow{}, row,
		"follower_id = ? AND following_id = ?", actorID, targetID)
	if err != nil {
		return false, err
	}
	if inserted {
		s.notify(ctx, targetID, actorID, NotificationFollow, nil)
	}
	return following, nil
}

// toggleRow deletes the rows matching the condition; when none existed it inserts row, ignoring a concurrent
// insert of the same key. It reports the resulting state and whether this call inserted the row.
func (s *Service) toggleRow(ctx context.Context, operation string, model any, row any, condition string, args ...any) (bool, bool, error) {
	db := s.db.WithContext(ctx)
	deleted := db.Where(condition, args...).Delete(model)
	if deleted.Error != nil {
		s.logError(operation, "delete_failed", deleted.Error)
		return false, false, upstreamError(operation, "delete_failed", deleted.Error)
	}
	if deleted.RowsAffected > 0 {
		return false, false, nil
	}

	created := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if created.Error != nil {
		s.logError(operation, "insert_failed", created.Error, zap.Any("args", args))
		return false, false, upstreamError(operation, "insert_failed", created.Error)
	}
	return true, created.RowsAffected > 0, nil
}
