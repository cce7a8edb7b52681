package users

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/sddion/projectzg/internal/apperr"
	"github.com/sddion/projectzg/internal/auth"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:zg_users_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate profile schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestEnsureProfileUsesMetadataUsername(t *testing.T) {
	service, db := newTestService(t)

	identity := auth.Identity{
		UserID:   "0190b5c2-7a1e-7c4d-9d2e-111111111111",
		Email:    "alice@example.com",
		Metadata: auth.UserMetadata{Username: "alice_w", FullName: "Alice W"},
	}
	profile, err := service.EnsureProfile(context.Background(), identity)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if profile.Username != "alice_w" || profile.FullName != "Alice W" {
		t.Fatalf("unexpected profile %#v", profile)
	}

	again, err := service.EnsureProfile(context.Background(), identity)
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if again.ID != profile.ID {
		t.Fatalf("expected the same profile, got %#v", again)
	}

	var count int64
	if err := db.Model(&Profile{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one profile row, got %d", count)
	}
}

func TestEnsureProfileFallsBackToEmailThenID(t *testing.T) {
	service, _ := newTestService(t)

	fromEmail, err := service.EnsureProfile(context.Background(), auth.Identity{
		UserID: "0190b5c2-7a1e-7c4d-9d2e-222222222222",
		Email:  "Bob.Smith@example.com",
	})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if fromEmail.Username != "bob_smith" {
		t.Fatalf("expected sanitized email username, got %q", fromEmail.Username)
	}

	// Same email local part is now taken, so the id-derived name is used.
	fromID, err := service.EnsureProfile(context.Background(), auth.Identity{
		UserID: "0190b5c2-7a1e-7c4d-9d2e-333333333333",
		Email:  "bob.smith@other.example",
	})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if fromID.Username != "user_0190b5c2" {
		t.Fatalf("expected id-derived username, got %q", fromID.Username)
	}
}

func TestEnsureProfileIsExactlyOnceUnderConcurrency(t *testing.T) {
	service, db := newTestService(t)
	identity := auth.Identity{UserID: "0190b5c2-7a1e-7c4d-9d2e-444444444444", Email: "carol@example.com"}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.EnsureProfile(context.Background(), identity); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent ensure failed: %v", err)
	}

	var count int64
	if err := db.Model(&Profile{}).Where("id = ?", identity.UserID).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one profile row, got %d", count)
	}
}

func TestEnsureProvisionedCachesKnownIDs(t *testing.T) {
	service, db := newTestService(t)
	identity := auth.Identity{UserID: "0190b5c2-7a1e-7c4d-9d2e-555555555555", Email: "dan@example.com"}

	if err := service.EnsureProvisioned(context.Background(), identity); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := db.Where("id = ?", identity.UserID).Delete(&Profile{}).Error; err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := service.EnsureProvisioned(context.Background(), identity); err != nil {
		t.Fatalf("cached ensure failed: %v", err)
	}
	var count int64
	db.Model(&Profile{}).Where("id = ?", identity.UserID).Count(&count)
	if count != 0 {
		t.Fatalf("expected the cache to skip the store")
	}
}

func TestProfileByUsernameStripsAt(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.EnsureProfile(context.Background(), auth.Identity{
		UserID:   "0190b5c2-7a1e-7c4d-9d2e-666666666666",
		Metadata: auth.UserMetadata{Username: "erin"},
	}); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	profile, err := service.ProfileByUsername(context.Background(), "@erin")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if profile.Username != "erin" {
		t.Fatalf("unexpected profile %#v", profile)
	}

	_, err = service.ProfileByUsername(context.Background(), "@nobody")
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind() != apperr.KindNotFound || appErr.Message() != MessageUserNotFound {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	owner, err := service.EnsureProfile(ctx, auth.Identity{UserID: "id-frank", Metadata: auth.UserMetadata{Username: "frank"}})
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if _, err := service.EnsureProfile(ctx, auth.Identity{UserID: "id-gina", Metadata: auth.UserMetadata{Username: "gina"}}); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	bio := "hello there"
	username := "frankie"
	updated, err := service.UpdateProfile(ctx, owner.ID, ProfileUpdate{Bio: &bio, Username: &username})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Bio != bio || updated.Username != username {
		t.Fatalf("unexpected profile %#v", updated)
	}

	taken := "gina"
	_, err = service.UpdateProfile(ctx, owner.ID, ProfileUpdate{Username: &taken})
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind() != apperr.KindConflict || appErr.Message() != MessageUsernameTaken {
		t.Fatalf("expected username conflict, got %v", err)
	}

	tooShort := "ab"
	_, err = service.UpdateProfile(ctx, owner.ID, ProfileUpdate{Username: &tooShort})
	appErr, ok = apperr.As(err)
	if !ok || appErr.Message() != auth.MessageUsernameLength {
		t.Fatalf("expected username length error, got %v", err)
	}

	if _, err := service.UpdateProfile(ctx, "missing", ProfileUpdate{Bio: &bio}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.UpdateProfile(ctx, owner.ID, ProfileUpdate{}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty update, got %v", err)
	}

	available, err := service.UsernameAvailable(ctx, "frankie", owner.ID)
	if err != nil || !available {
		t.Fatalf("expected own username to be available, got %v %v", available, err)
	}
	available, err = service.UsernameAvailable(ctx, "gina", owner.ID)
	if err != nil || available {
		t.Fatalf("expected taken username to be unavailable, got %v %v", available, err)
	}
}

func TestUsernameCandidate(t *testing.T) {
	testCases := []struct {
		name     string
		identity auth.Identity
		expected string
	}{
		{name: "metadata", identity: auth.Identity{UserID: "abc", Metadata: auth.UserMetadata{Username: "valid_name"}}, expected: "valid_name"},
		{name: "invalid metadata", identity: auth.Identity{UserID: "abc", Email: "jo.doe@example.com", Metadata: auth.UserMetadata{Username: "x"}}, expected: "jo_doe"},
		{name: "short email", identity: auth.Identity{UserID: "ABCDEF0123456789", Email: "a@example.com"}, expected: "user_abcdef01"},
		{name: "no email", identity: auth.Identity{UserID: "0190b5c2-7a1e"}, expected: "user_0190b5c2"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := usernameCandidate(testCase.identity); got != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, got)
			}
		})
	}
}
