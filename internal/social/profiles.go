package social

import (
	"context"

	"github.com/sddion/projectzg/internal/auth"
	"github.com/sddion/projectzg/internal/users"
	"go.uber.org/zap"
)

// OwnProfile returns the caller's profile, provisioning it on first access.
func (s *Service) OwnProfile(ctx context.Context, identity auth.Identity) (ProfileView, error) {
	profile, err := s.profiles.EnsureProfile(ctx, identity)
	if err != nil {
		return ProfileView{}, err
	}
	return s.profileView(ctx, profile)
}

// PublicProfile looks a profile up by username. IsFollowing is set only for an authenticated viewer other than
// the owner.
func (s *Service) PublicProfile(ctx context.Context, viewerID string, username string) (ProfileView, error) {
	profile, err := s.profiles.ProfileByUsername(ctx, username)
	if err != nil {
		return ProfileView{}, err
	}
	view, err := s.profileView(ctx, profile)
	if err != nil {
		return ProfileView{}, err
	}
	if viewerID == "" || viewerID == profile.ID {
		return view, nil
	}
	var edges int64
	err = s.db.WithContext(ctx).Model(&Follow{}).
		Where("follower_id = ? AND following_id = ?", viewerID, profile.ID).
		Count(&edges).Error
	if err != nil {
		s.logError(opProfile, "follow_lookup_failed", err, zap.String("user_id", profile.ID))
		return ProfileView{}, upstreamError(opProfile, "follow_lookup_failed", err)
	}
	following := edges > 0
	view.IsFollowing = &following
	return view, nil
}

func (s *Service) profileView(ctx context.Context, profile users.Profile) (ProfileView, error) {
	view := ProfileView{Profile: profile}
	db := s.db.WithContext(ctx)
	counters := []struct {
		reason string
		model  any
		where  string
		target *int64
	}{
		{"followers_count_failed", &Follow{}, "following_id = ?", &view.FollowersCount},
		{"following_count_failed", &Follow{}, "follower_id = ?", &view.FollowingCount},
		{"posts_count_failed", &Post{}, "author_id = ?", &view.PostsCount},
	}
	for _, counter := range counters {
		if err := db.Model(counter.model).Where(counter.where, profile.ID).Count(counter.target).Error; err != nil {
			s.logError(opProfile, counter.reason, err, zap.String("user_id", profile.ID))
			return ProfileView{}, upstreamError(opProfile, counter.reason, err)
		}
	}
	return view, nil
}
