package social

import (
	"time"

	"github.com/sddion/projectzg/internal/users"
	"gorm.io/datatypes"
)

// Reaction types.
const (
	ReactionLike     = "like"
	ReactionBookmark = "bookmark"
)

// Notification types.
const (
	NotificationLike    = "like"
	NotificationFollow  = "follow"
	NotificationComment = "comment"
	NotificationMention = "mention"
	NotificationRepost  = "repost"
	NotificationReply   = "reply"
)

// AuthorSummary is the profile projection joined onto posts, comments, stories and notifications.
type AuthorSummary struct {
	ID        string `gorm:"column:id;primaryKey;size:190" json:"id"`
	Username  string `gorm:"column:username;size:30" json:"username"`
	FullName  string `gorm:"column:full_name;size:100" json:"full_name"`
	AvatarURL string `gorm:"column:avatar_url;size:1024" json:"avatar_url"`
}

// TableName points the projection at the profile table.
func (AuthorSummary) TableName() string {
	return "profiles"
}

// Post is an authored entry with up to four media URLs.
type Post struct {
	ID          string                      `gorm:"column:id;primaryKey;size:36" json:"id"`
	AuthorID    string                      `gorm:"column:author_id;size:190;not null;index:idx_posts_author_created,priority:1" json:"author_id"`
	ContentText string                      `gorm:"column:content_text;type:text" json:"content_text"`
	MediaURLs   datatypes.JSONSlice[string] `gorm:"column:media_urls" json:"media_urls"`
	IsEdited    bool                        `gorm:"column:is_edited;not null;default:false" json:"is_edited"`
	CreatedAt   time.Time                   `gorm:"column:created_at;index;index:idx_posts_author_created,priority:2" json:"created_at"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at" json:"updated_at"`
	Author      *AuthorSummary              `gorm:"foreignKey:AuthorID;references:ID;-:migration" json:"author,omitempty"`
}

// TableName exposes the table backing posts.
func (Post) TableName() string {
	return "posts"
}

// FeedPost is a post annotated for the requesting user.
type FeedPost struct {
	Post
	HasLiked      bool  `json:"has_liked"`
	HasBookmarked bool  `json:"has_bookmarked"`
	LikesCount    int64 `json:"likes_count"`
	CommentsCount int64 `json:"comments_count"`
}

// Comment belongs to a post and optionally to a top-level comment of the same post.
type Comment struct {
	ID           string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	PostID       string         `gorm:"column:post_id;size:36;not null;index:idx_comments_post_created,priority:1" json:"post_id"`
	UserID       string         `gorm:"column:user_id;size:190;not null;index" json:"user_id"`
	Content      string         `gorm:"column:content;type:text;not null" json:"content"`
	ParentID     *string        `gorm:"column:parent_id;size:36;index" json:"parent_id"`
	IsEdited     bool           `gorm:"column:is_edited;not null;default:false" json:"is_edited"`
	RepliesCount int            `gorm:"column:replies_count;not null;default:0" json:"replies_count"`
	CreatedAt    time.Time      `gorm:"column:created_at;index:idx_comments_post_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at" json:"updated_at"`
	User         *AuthorSummary `gorm:"foreignKey:UserID;references:ID;-:migration" json:"user,omitempty"`
}

// TableName exposes the table backing comments.
func (Comment) TableName() string {
	return "comments"
}

// IsReply reports whether the comment has a parent.
func (c Comment) IsReply() bool {
	return c.ParentID != nil && *c.ParentID != ""
}

// Reaction is a like or bookmark of a post. At most one row exists per (post, user, type).
type Reaction struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	PostID    string    `gorm:"column:post_id;size:36;not null;uniqueIndex:idx_reactions_key,priority:1" json:"post_id"`
	UserID    string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_reactions_key,priority:2;index" json:"user_id"`
	Type      string    `gorm:"column:type;size:16;not null;uniqueIndex:idx_reactions_key,priority:3" json:"type"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName exposes the table backing reactions.
func (Reaction) TableName() string {
	return "reactions"
}

// Follow is a directed edge of the social graph.
type Follow struct {
	ID          string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	FollowerID  string    `gorm:"column:follower_id;size:190;not null;uniqueIndex:idx_follows_edge,priority:1" json:"follower_id"`
	FollowingID string    `gorm:"column:following_id;size:190;not null;uniqueIndex:idx_follows_edge,priority:2;index" json:"following_id"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName exposes the table backing follows.
func (Follow) TableName() string {
	return "follows"
}

// Story is media visible until ExpiresAt.
type Story struct {
	ID        string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"column:user_id;size:190;not null;index" json:"user_id"`
	MediaURL  string         `gorm:"column:media_url;size:1024;not null" json:"media_url"`
	Caption   string         `gorm:"column:caption;size:500" json:"caption"`
	MediaType string         `gorm:"column:media_type;size:16;not null" json:"media_type"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	ExpiresAt time.Time      `gorm:"column:expires_at;not null;index" json:"expires_at"`
	User      *AuthorSummary `gorm:"foreignKey:UserID;references:ID;-:migration" json:"user,omitempty"`
}

// TableName exposes the table backing stories.
func (Story) TableName() string {
	return "stories"
}

// Notification tells UserID that ActorID did something.
type Notification struct {
	ID        string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"column:user_id;size:190;not null;index:idx_notifications_recipient,priority:1" json:"user_id"`
	ActorID   string         `gorm:"column:actor_id;size:190;not null" json:"actor_id"`
	Type      string         `gorm:"column:type;size:16;not null" json:"type"`
	PostID    *string        `gorm:"column:post_id;size:36;index" json:"post_id"`
	IsRead    bool           `gorm:"column:is_read;not null;default:false" json:"is_read"`
	CreatedAt time.Time      `gorm:"column:created_at;index:idx_notifications_recipient,priority:2" json:"created_at"`
	Actor     *AuthorSummary `gorm:"foreignKey:ActorID;references:ID;-:migration" json:"actor,omitempty"`
}

// TableName exposes the table backing notifications.
func (Notification) TableName() string {
	return "notifications"
}

// Media is the bookkeeping row of an upload.
type Media struct {
	ID         string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"column:user_id;size:190;not null;index" json:"user_id"`
	BucketName string    `gorm:"column:bucket_name;size:32;not null" json:"bucket_name"`
	FilePath   string    `gorm:"column:file_path;size:512;not null" json:"file_path"`
	FileName   string    `gorm:"column:file_name;size:255;not null" json:"file_name"`
	FileSize   int64     `gorm:"column:file_size;not null" json:"file_size"`
	MimeType   string    `gorm:"column:mime_type;size:127;not null" json:"mime_type"`
	IsPublic   bool      `gorm:"column:is_public;not null;default:true" json:"is_public"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName exposes the table backing media records.
func (Media) TableName() string {
	return "media"
}

// ProfileView is a profile with its derived counters.
type ProfileView struct {
	users.Profile
	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
	PostsCount     int64 `json:"posts_count"`
	IsFollowing    *bool `json:"is_following,omitempty"`
}

// Models lists the tables owned by this package, in migration order.
func Models() []any {
	return []any{&Post{}, &Comment{}, &Reaction{}, &Follow{}, &Story{}, &Notification{}, &Media{}}
}
