package social

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotificationsWindowAndMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.mustUser(t, "alice")
	bobby := f.mustUser(t, "bobby")
	carol := f.mustUser(t, "carol")

	_, err := f.service.ToggleFollow(ctx, bobby.ID, alice.ID)
	require.NoError(t, err)
	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.service.ToggleFollow(ctx, carol.ID, alice.ID)
	require.NoError(t, err)

	notifications, err := f.service.Notifications(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	require.Equal(t, carol.ID, notifications[0].ActorID)
	require.Equal(t, "carol", notifications[0].Actor.Username)
	require.False(t, notifications[0].IsRead)

	updated, err := f.service.MarkNotificationsRead(ctx, alice.ID, []string{notifications[0].ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, updated)

	updated, err = f.service.MarkNotificationsRead(ctx, alice.ID, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, updated, "only the older unread notification remains")

	updated, err = f.service.MarkNotificationsRead(ctx, bobby.ID, nil)
	require.NoError(t, err)
	require.Zero(t, updated)
}

func TestExtractMentions(t *testing.T) {
	require.Equal(t, []string{"alice", "bob_2"}, extractMentions("hey @alice, @bob_2 and @Alice again; @ab too short"))
	require.Empty(t, extractMentions("no mentions here"))
}
