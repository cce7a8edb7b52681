package social

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/sddion/projectzg/internal/apperr"
	"github.com/sddion/projectzg/internal/auth"
	"github.com/sddion/projectzg/internal/users"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("id-%05d", s.next), nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(step)
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []Notification
}

func (p *recordingPublisher) PublishNotification(notification Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, notification)
}

func (p *recordingPublisher) snapshot() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.published...)
}

type fixture struct {
	db        *gorm.DB
	clock     *testClock
	ids       *sequenceIDs
	profiles  *users.Service
	service   *Service
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:zg_social_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(append([]any{&users.Profile{}}, Models()...)...))

	clock := newTestClock()
	profiles, err := users.NewService(users.ServiceConfig{Database: db, Clock: clock.Now})
	require.NoError(t, err)

	ids := &sequenceIDs{}
	publisher := &recordingPublisher{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: ids,
		Profiles:   profiles,
		Publisher:  publisher,
	})
	require.NoError(t, err)

	return &fixture{db: db, clock: clock, ids: ids, profiles: profiles, service: service, publisher: publisher}
}

// serviceWithLogger builds a second service over the fixture's database that logs to logger.
func (f *fixture) serviceWithLogger(t *testing.T, logger *zap.Logger) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   f.db,
		Clock:      f.clock.Now,
		IDProvider: f.ids,
		Profiles:   f.profiles,
		Publisher:  f.publisher,
		Logger:     logger,
	})
	require.NoError(t, err)
	return service
}

func (f *fixture) mustUser(t *testing.T, username string) users.Profile {
	t.Helper()
	profile, err := f.profiles.EnsureProfile(context.Background(), auth.Identity{
		UserID:   "user-" + username,
		Email:    username + "@example.com",
		Metadata: auth.UserMetadata{Username: username},
	})
	require.NoError(t, err)
	return profile
}

func (f *fixture) mustPost(t *testing.T, authorID string, content string) Post {
	t.Helper()
	f.clock.Advance(time.Second)
	post, err := f.service.CreatePost(context.Background(), authorID, PostDraft{Content: content})
	require.NoError(t, err)
	return post
}

func (f *fixture) mustComment(t *testing.T, authorID, postID, parentID, content string) Comment {
	t.Helper()
	f.clock.Advance(time.Second)
	comment, err := f.service.CreateComment(context.Background(), authorID, postID, CommentDraft{Content: content, ParentID: parentID})
	require.NoError(t, err)
	return comment
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var total int64
	require.NoError(t, f.db.Model(model).Where(query, args...).Count(&total).Error)
	return total
}

func requireKind(t *testing.T, err error, kind apperr.Kind, message string) {
	t.Helper()
	appErr, ok := apperr.As(err)
	require.Truef(t, ok, "expected an application error, got %v", err)
	require.Equal(t, kind, appErr.Kind())
	if message != "" {
		require.Equal(t, message, appErr.Message())
	}
}
