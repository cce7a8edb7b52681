package social

import (
	"context"
	"sync"
	"testing"

	"github.com/sddion/projectzg/internal/apperr"
	"github.com/stretchr/testify/require"
)

func TestToggleLikeTwiceRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.mustUser(t, "alice")
	bobby := f.mustUser(t, "bobby")
	post := f.mustPost(t, alice.ID, "like me")

	liked, err := f.service.ToggleLike(ctx, bobby.ID, post.ID)
	require.NoError(t, err)
	require.True(t, liked)
	require.EqualValues(t, 1, f.count(t, &Reaction{}, "post_id = ? AND type = ?", post.ID, ReactionLike))

	liked, err = f.service.ToggleLike(ctx, bobby.ID, post.ID)
	require.NoError(t, err)
	require.False(t, liked)
	require.EqualValues(t, 0, f.count(t, &Reaction{}, "post_id = ?", post.ID))

	require.EqualValues(t, 1, f.count(t, &Notification{}, "user_id = ? AND type = ?", alice.ID, NotificationLike))

	_, err = f.service.ToggleLike(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.count(t, &Notification{}, "user_id = ?", alice.ID), "own likes do not notify")

	_, err = f.service.ToggleLike(ctx, bobby.ID, "missing")
	requireKind(t, err, apperr.KindNotFound, MessagePostNotFound)
}

func TestToggleBookmarkIsIndependentOfLike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.mustUser(t, "alice")
	post := f.mustPost(t, alice.ID, "save me")

	_, err := f.service.ToggleLike(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	saved, err := f.service.ToggleBookmark(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	require.True(t, saved)
	require.EqualValues(t, 2, f.count(t, &Reaction{}, "post_id = ?", post.ID))
	require.EqualValues(t, 0, f.count(t, &Notification{}, "type = ?", NotificationLike))
}

func TestConcurrentTogglesKeepAtMostOneRow(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bobby := f.mustUser(t, "bobby")
	post := f.mustPost(t, alice.ID, "race")

	var wg sync.WaitGroup
	for worker := 0; worker < 6; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.service.ToggleLike(context.Background(), bobby.ID, post.ID)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, f.count(t, &Reaction{}, "post_id = ? AND user_id = ?", post.ID, bobby.ID), int64(1))
}

func TestToggleFollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.mustUser(t, "alice")
	bobby := f.mustUser(t, "bobby")

	_, err := f.service.ToggleFollow(ctx, alice.ID, alice.ID)
	requireKind(t, err, apperr.KindValidation, MessageCannotFollowSelf)
	require.EqualValues(t, 0, f.count(t, &Follow{}, "follower_id = ?", alice.ID))

	_, err = f.service.ToggleFollow(ctx, alice.ID, "user-ghost")
	requireKind(t, err, apperr.KindNotFound, MessageUserNotFound)

	following, err := f.service.ToggleFollow(ctx, alice.ID, bobby.ID)
	require.NoError(t, err)
	require.True(t, following)
	require.EqualValues(t, 1, f.count(t, &Notification{}, "user_id = ? AND type = ?", bobby.ID, NotificationFollow))

	following, err = f.service.ToggleFollow(ctx, alice.ID, bobby.ID)
	require.NoError(t, err)
	require.False(t, following)
	require.EqualValues(t, 0, f.count(t, &Follow{}, "follower_id = ?", alice.ID))
}
