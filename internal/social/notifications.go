package social

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9_]{3,30})`)

// Notifications returns the user's notifications of the last seven days, newest first, with the actor joined.
func (s *Service) Notifications(ctx context.Context, userID string) ([]Notification, error) {
	since := s.now().Add(-NotificationWindow)
	notifications := make([]Notification, 0)
	err := s.db.WithContext(ctx).Preload("Actor").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC, id DESC").
		Limit(NotificationPageSize).
		Find(&notifications).Error
	if err != nil {
		s.logError(opNotifications, "select_failed", err, zap.String("user_id", userID))
		return nil, upstreamError(opNotifications, "select_failed", err)
	}
	return notifications, nil
}

// MarkNotificationsRead flags the given notifications of the user as read, or all of them when ids is empty.
func (s *Service) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error) {
	query := s.db.WithContext(ctx).Model(&Notification{}).Where("user_id = ? AND is_read = ?", userID, false)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	result := query.Update("is_read", true)
	if result.Error != nil {
		s.logError(opMarkRead, "update_failed", result.Error, zap.String("user_id", userID))
		return 0, upstreamError(opMarkRead, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// notify stores a notification and publishes it. Failures are logged and swallowed; self-notifications are
// skipped.
func (s *Service) notify(ctx context.Context, recipientID, actorID, kind string, postID *string) {
	if recipientID == "" || recipientID == actorID {
		return
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logDegraded(opNotify, "id_generation_failed", err)
		return
	}
	notification := Notification{
		ID:        id,
		UserID:    recipientID,
		ActorID:   actorID,
		Type:      kind,
		PostID:    postID,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Omit("Actor").Create(&notification).Error; err != nil {
		s.logDegraded(opNotify, "insert_failed", err,
			zap.String("recipient_id", recipientID),
			zap.String("type", kind))
		return
	}
	if s.publisher == nil {
		return
	}
	var actor AuthorSummary
	if err := s.db.WithContext(ctx).Where("id = ?", actorID).Take(&actor).Error; err == nil {
		notification.Actor = &actor
	}
	s.publisher.PublishNotification(notification)
}

// notifyMentions notifies every existing user mentioned in text, except the author.
func (s *Service) notifyMentions(ctx context.Context, authorID string, text string, postID string) {
	usernames := extractMentions(text)
	if len(usernames) == 0 {
		return
	}
	profiles, err := s.profiles.ProfilesByUsernames(ctx, usernames)
	if err != nil {
		s.logDegraded(opNotify, "mention_lookup_failed", err)
		return
	}
	for _, profile := range profiles {
		s.notify(ctx, profile.ID, authorID, NotificationMention, &postID)
	}
}

func extractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	usernames := make([]string, 0, len(matches))
	for _, match := range matches {
		name := match[1]
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		usernames = append(usernames, name)
	}
	return usernames
}
