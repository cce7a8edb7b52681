package social

import (
	"errors"

	"github.com/sddion/projectzg/internal/apperr"
)

const (
	opServiceNew         = "social.service.new"
	opFeed               = "social.feed"
	opPostsByAuthor      = "social.posts_by_author"
	opBookmarkedPosts    = "social.bookmarked_posts"
	opTaggedPosts        = "social.tagged_posts"
	opCreatePost         = "social.create_post"
	opPostByID           = "social.post_by_id"
	opUpdatePost         = "social.update_post"
	opDeletePost         = "social.delete_post"
	opComments           = "social.comments"
	opCreateComment      = "social.create_comment"
	opUpdateComment      = "social.update_comment"
	opDeleteComment      = "social.delete_comment"
	opToggleLike         = "social.toggle_like"
	opToggleBookmark     = "social.toggle_bookmark"
	opToggleFollow       = "social.toggle_follow"
	opProfile            = "social.profile"
	opCreateStory        = "social.create_story"
	opStories            = "social.stories"
	opNotifications      = "social.notifications"
	opMarkRead           = "social.mark_notifications_read"
	opNotify             = "social.notify"
	opUploadMedia        = "social.upload_media"
	opMediaServiceNew    = "social.media_service.new"
	opReactionAnnotation = "social.annotate_reactions"
	opCounters           = "social.counters"
)

// Messages returned to clients.
const (
	MessageContentOrMediaRequired = "Content or media is required"
	MessageContentRequired        = "Content is required"
	MessageTooManyMedia           = "A post can have at most 4 media files"
	MessagePostNotFound           = "Post not found"
	MessageCommentNotFound        = "Comment not found"
	MessageEmptyComment           = "Empty comment"
	MessageParentNotFound         = "Parent comment not found"
	MessageParentOtherPost        = "Parent comment belongs to different post"
	MessageEditPostForbidden      = "Not authorized to edit this post"
	MessageDeletePostForbidden    = "Not authorized to delete this post"
	MessageEditCommentForbidden   = "Not authorized to edit this comment"
	MessageDeleteCommentForbidden = "Not authorized to delete this comment"
	MessageUserNotFound           = "User not found"
	MessageCannotFollowSelf       = "Cannot follow yourself"
	MessageMediaRequired          = "Media is required"
	MessageFileTooLarge           = "File is too large. Maximum size is 5MB."
	MessageInvalidAvatarType      = "Invalid file type. Only JPEG, PNG, GIF, and WebP are allowed."
	MessageInvalidMediaType       = "Invalid file type. Only images and MP4, WebM or QuickTime videos are allowed."
	MessageUnknownBucket          = "Unknown upload destination"
	MessageUploadFailed           = "File upload failed"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingProfiles   = errors.New("profile service is required")
	errMissingStore      = errors.New("object store is required")
)

func newServiceError(kind apperr.Kind, operation, reason, message string) error {
	return apperr.New(kind, operation, reason, message, nil)
}

func upstreamError(operation, reason string, cause error) error {
	return apperr.Upstream(operation, reason, cause)
}
