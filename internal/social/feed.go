package social

import (
	"context"
	"strings"
	"time"

	"github.com/sddion/projectzg/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FeedMode selects the post stream.
type FeedMode string

const (
	FeedModeAll       FeedMode = "all"
	FeedModeFollowing FeedMode = "following"
)

// ParseFeedMode maps the filter query parameter to a mode. Unknown values select the global stream.
func ParseFeedMode(filter string) FeedMode {
	if strings.EqualFold(strings.TrimSpace(filter), string(FeedModeFollowing)) {
		return FeedModeFollowing
	}
	return FeedModeAll
}

// FeedQuery selects one feed page.
type FeedQuery struct {
	ViewerID string
	Mode     FeedMode
	Before   *time.Time
}

// ComposeFeed annotates posts with the viewer's reactions. Output order equals input order; reactions for
// posts outside the input are ignored.
func ComposeFeed(posts []Post, reactions []Reaction) []FeedPost {
	type reactionState struct {
		liked      bool
		bookmarked bool
	}
	states := make(map[string]reactionState, len(posts))
	for _, reaction := range reactions {
		state := states[reaction.PostID]
		switch reaction.Type {
		case ReactionLike:
			state.liked = true
		case ReactionBookmark:
			state.bookmarked = true
		}
		states[reaction.PostID] = state
	}

	feed := make([]FeedPost, 0, len(posts))
	for _, post := range posts {
		state := states[post.ID]
		feed = append(feed, FeedPost{
			Post:          post,
			HasLiked:      state.liked,
			HasBookmarked: state.bookmarked,
		})
	}
	return feed
}

// Feed returns one page of posts, newest first, annotated for the viewer.
func (s *Service) Feed(ctx context.Context, query FeedQuery) ([]FeedPost, error) {
	db := s.db.WithContext(ctx)
	postsQuery := db.Preload("Author").Order("created_at DESC, id DESC").Limit(FeedPageSize)

	if query.Mode == FeedModeFollowing {
		var followed []string
		err := db.Model(&Follow{}).Where("follower_id = ?", query.ViewerID).Pluck("following_id", &followed).Error
		if err != nil {
			s.logError(opFeed, "follows_select_failed", err, zap.String("user_id", query.ViewerID))
			return nil, upstreamError(opFeed, "follows_select_failed", err)
		}
		if len(followed) == 0 {
			return []FeedPost{}, nil
		}
		postsQuery = postsQuery.Where("author_id IN ?", append(followed, query.ViewerID))
	}
	if query.Before != nil {
		postsQuery = postsQuery.Where("created_at < ?", query.Before.UTC())
	}

	var posts []Post
	if err := postsQuery.Find(&posts).Error; err != nil {
		s.logError(opFeed, "posts_select_failed", err, zap.String("user_id", query.ViewerID))
		return nil, upstreamError(opFeed, "posts_select_failed", err)
	}
	return s.decorate(ctx, query.ViewerID, posts), nil
}

// PostsByAuthor lists an author's posts, newest first, annotated for the viewer. An empty viewer is a guest.
func (s *Service) PostsByAuthor(ctx context.Context, viewerID string, authorID string) ([]FeedPost, error) {
	var posts []Post
	err := s.db.WithContext(ctx).Preload("Author").
		Where("author_id = ?", authorID).
		Order("created_at DESC, id DESC").
		Find(&posts).Error
	if err != nil {
		s.logError(opPostsByAuthor, "posts_select_failed", err, zap.String("author_id", authorID))
		return nil, upstreamError(opPostsByAuthor, "posts_select_failed", err)
	}
	return s.decorate(ctx, viewerID, posts), nil
}

// PostsByUsername resolves the username and lists that author's posts.
func (s *Service) PostsByUsername(ctx context.Context, viewerID string, username string) ([]FeedPost, error) {
	profile, err := s.profiles.ProfileByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.PostsByAuthor(ctx, viewerID, profile.ID)
}

// BookmarkedPosts lists the posts the user bookmarked, newest post first.
func (s *Service) BookmarkedPosts(ctx context.Context, userID string) ([]FeedPost, error) {
	db := s.db.WithContext(ctx)
	bookmarked := db.Model(&Reaction{}).Select("post_id").Where("user_id = ? AND type = ?", userID, ReactionBookmark)

	var posts []Post
	err := db.Preload("Author").
		Where("id IN (?)", bookmarked).
		Order("created_at DESC, id DESC").
		Find(&posts).Error
	if err != nil {
		s.logError(opBookmarkedPosts, "posts_select_failed", err, zap.String("user_id", userID))
		return nil, upstreamError(opBookmarkedPosts, "posts_select_failed", err)
	}
	return s.decorate(ctx, userID, posts), nil
}

// TaggedPosts lists posts by other authors that mention the user's @username.
func (s *Service) TaggedPosts(ctx context.Context, userID string) ([]FeedPost, error) {
	profile, err := s.profiles.ProfileByID(ctx, userID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return []FeedPost{}, nil
	}
	if err != nil {
		return nil, err
	}

	pattern := "%@" + escapeLike(strings.ToLower(profile.Username)) + "%"
	var posts []Post
	err = s.db.WithContext(ctx).Preload("Author").
		Where("LOWER(content_text) LIKE ? ESCAPE '\\'", pattern).
		Where("author_id <> ?", userID).
		Order("created_at DESC, id DESC").
		Limit(TaggedPostsLimit).
		Find(&posts).Error
	if err != nil {
		s.logError(opTaggedPosts, "posts_select_failed", err, zap.String("user_id", userID))
		return nil, upstreamError(opTaggedPosts, "posts_select_failed", err)
	}
	return s.decorate(ctx, userID, posts), nil
}

// decorate attaches reaction flags and counters. Failed lookups leave defaults in place and are logged.
func (s *Service) decorate(ctx context.Context, viewerID string, posts []Post) []FeedPost {
	if len(posts) == 0 {
		return []FeedPost{}
	}
	postIDs := make([]string, 0, len(posts))
	for _, post := range posts {
		postIDs = append(postIDs, post.ID)
	}

	var reactions []Reaction
	if viewerID != "" {
		err := s.db.WithContext(ctx).
			Select("post_id", "type").
			Where("post_id IN ? AND user_id = ?", postIDs, viewerID).
			Find(&reactions).Error
		if err != nil {
			s.logDegraded(opReactionAnnotation, "reactions_select_failed", err, zap.String("user_id", viewerID))
			reactions = nil
		}
	}
	feed := ComposeFeed(posts, reactions)

	likes, err := s.countByPost(ctx, s.db.Model(&Reaction{}).Where("type = ?", ReactionLike), postIDs)
	if err != nil {
		s.logDegraded(opCounters, "likes_count_failed", err)
	}
	comments, err := s.countByPost(ctx, s.db.Model(&Comment{}), postIDs)
	if err != nil {
		s.logDegraded(opCounters, "comments_count_failed", err)
	}
	for index := range feed {
		feed[index].LikesCount = likes[feed[index].ID]
		feed[index].CommentsCount = comments[feed[index].ID]
	}
	return feed
}

type postCount struct {
	PostID string
	Total  int64
}

func (s *Service) countByPost(ctx context.Context, scope *gorm.DB, postIDs []string) (map[string]int64, error) {
	var rows []postCount
	err := scope.WithContext(ctx).
		Select("post_id, COUNT(*) AS total").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return map[string]int64{}, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.PostID] = row.Total
	}
	return counts, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
