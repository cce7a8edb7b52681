package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sddion/projectzg/internal/apperr"
	"github.com/sddion/projectzg/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew       = "users.service.new"
	opEnsureProfile    = "users.ensure_profile"
	opProfileByID      = "users.profile_by_id"
	opProfileByName    = "users.profile_by_username"
	opUpdateProfile    = "users.update_profile"
	opProfilesByNames  = "users.profiles_by_usernames"
	opUsernameLookup   = "users.username_available"
	maxBioLength       = 500
	maxGenderLength    = 32
	maxAvatarURLLength = 1024
)

// Messages returned by the service.
const (
	MessageUserNotFound   = "User not found"
	MessageUsernameTaken  = "Username is already taken"
	MessageBioTooLong     = "Bio must be 500 characters or less."
	MessageInvalidGender  = "Gender must be 32 characters or less."
	MessageInvalidAvatar  = "Avatar URL is too long."
	MessageNothingToApply = "No profile fields to update."
)

var (
	// ErrInvalidIdentity indicates the identity did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	errMissingDatabase = errors.New("database handle is required")
)

// ServiceConfig describes the dependencies required for profile management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages profile rows and their provisioning.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	// provisioned holds the ids known to have a profile row.
	provisioned sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.Upstream(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// EnsureProvisioned makes sure the identity has a profile row, skipping the store once the id has been seen.
func (s *Service) EnsureProvisioned(ctx context.Context, identity auth.Identity) error {
	if _, ok := s.provisioned.Load(normalize(identity.UserID)); ok {
		return nil
	}
	_, err := s.EnsureProfile(ctx, identity)
	return err
}

// EnsureProfile returns the profile of the identity, creating it on first access. Concurrent callers resolve
// to the same row: a duplicate insert re-fetches instead of failing.
func (s *Service) EnsureProfile(ctx context.Context, identity auth.Identity) (Profile, error) {
	userID := normalize(identity.UserID)
	if userID == "" {
		return Profile{}, apperr.New(apperr.KindUnauthorized, opEnsureProfile, "invalid_identity", "", ErrInvalidIdentity)
	}

	profile, found, err := s.findByID(ctx, userID)
	if err != nil {
		s.logError(opEnsureProfile, "lookup_failed", err, zap.String("user_id", userID))
		return Profile{}, apperr.Upstream(opEnsureProfile, "lookup_failed", err)
	}
	if found {
		s.provisioned.Store(userID, struct{}{})
		return profile, nil
	}

	candidates := []string{usernameCandidate(identity)}
	if fallback := fallbackUsername(userID); fallback != candidates[0] {
		candidates = append(candidates, fallback)
	}

	for _, username := range candidates {
		profile = Profile{
			ID:        userID,
			Username:  username,
			FullName:  normalize(identity.Metadata.FullName),
			AvatarURL: normalize(identity.Metadata.AvatarURL),
		}
		err = s.db.WithContext(ctx).Create(&profile).Error
		if err == nil {
			s.provisioned.Store(userID, struct{}{})
			s.logger.Info("profile provisioned", zap.String("user_id", userID), zap.String("username", username))
			return profile, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logError(opEnsureProfile, "insert_failed", err, zap.String("user_id", userID))
			return Profile{}, apperr.Upstream(opEnsureProfile, "insert_failed", err)
		}
		existing, found, lookupErr := s.findByID(ctx, userID)
		if lookupErr != nil {
			s.logError(opEnsureProfile, "lookup_failed", lookupErr, zap.String("user_id", userID))
			return Profile{}, apperr.Upstream(opEnsureProfile, "lookup_failed", lookupErr)
		}
		if found {
			s.provisioned.Store(userID, struct{}{})
			return existing, nil
		}
	}

	s.logError(opEnsureProfile, "username_exhausted", err, zap.String("user_id", userID))
	return Profile{}, apperr.Upstream(opEnsureProfile, "username_exhausted", err)
}

// ProfileByID returns the profile with the given id.
func (s *Service) ProfileByID(ctx context.Context, userID string) (Profile, error) {
	profile, found, err := s.findByID(ctx, normalize(userID))
	if err != nil {
		s.logError(opProfileByID, "lookup_failed", err, zap.String("user_id", userID))
		return Profile{}, apperr.Upstream(opProfileByID, "lookup_failed", err)
	}
	if !found {
		return Profile{}, apperr.New(apperr.KindNotFound, opProfileByID, "not_found", MessageUserNotFound, nil)
	}
	return profile, nil
}

// ProfileByUsername returns the profile with the given username. One leading "@" is ignored.
func (s *Service) ProfileByUsername(ctx context.Context, username string) (Profile, error) {
	clean := strings.TrimPrefix(normalize(username), "@")
	if clean == "" {
		return Profile{}, apperr.New(apperr.KindNotFound, opProfileByName, "not_found", MessageUserNotFound, nil)
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("username = ?", clean).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, apperr.New(apperr.KindNotFound, opProfileByName, "not_found", MessageUserNotFound, nil)
	}
	if err != nil {
		s.logError(opProfileByName, "lookup_failed", err, zap.String("username", clean))
		return Profile{}, apperr.Upstream(opProfileByName, "lookup_failed", err)
	}
	return profile, nil
}

// ProfilesByUsernames returns the existing profiles among usernames.
func (s *Service) ProfilesByUsernames(ctx context.Context, usernames []string) ([]Profile, error) {
	profiles := make([]Profile, 0)
	if len(usernames) == 0 {
		return profiles, nil
	}
	if err := s.db.WithContext(ctx).Where("username IN ?", usernames).Find(&profiles).Error; err != nil {
		s.logError(opProfilesByNames, "lookup_failed", err)
		return nil, apperr.Upstream(opProfilesByNames, "lookup_failed", err)
	}
	return profiles, nil
}

// UsernameAvailable reports whether username is free or already belongs to userID.
func (s *Service) UsernameAvailable(ctx context.Context, username string, userID string) (bool, error) {
	var owners []string
	err := s.db.WithContext(ctx).Model(&Profile{}).Where("username = ?", normalize(username)).Limit(1).Pluck("id", &owners).Error
	if err != nil {
		s.logError(opUsernameLookup, "lookup_failed", err)
		return false, apperr.Upstream(opUsernameLookup, "lookup_failed", err)
	}
	return len(owners) == 0 || owners[0] == userID, nil
}

// UpdateProfile applies the non-nil fields of update to the profile owned by userID.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (Profile, error) {
	if update.empty() {
		return Profile{}, apperr.New(apperr.KindValidation, opUpdateProfile, "empty_update", MessageNothingToApply, nil)
	}
	updates := map[string]any{}
	if update.Username != nil {
		username := normalize(*update.Username)
		if err := auth.ValidateUsername(username); err != nil {
			return Profile{}, err
		}
		updates["username"] = username
	}
	if update.FullName != nil {
		fullName := normalize(*update.FullName)
		if len(fullName) > auth.MaxFullNameLength {
			return Profile{}, apperr.New(apperr.KindValidation, opUpdateProfile, "full_name_length", auth.MessageFullNameLength, nil)
		}
		updates["full_name"] = fullName
	}
	if update.Bio != nil {
		bio := normalize(*update.Bio)
		if len(bio) > maxBioLength {
			return Profile{}, apperr.New(apperr.KindValidation, opUpdateProfile, "bio_length", MessageBioTooLong, nil)
		}
		updates["bio"] = bio
	}
	if update.Gender != nil {
		gender := normalize(*update.Gender)
		if len(gender) > maxGenderLength {
			return Profile{}, apperr.New(apperr.KindValidation, opUpdateProfile, "gender_length", MessageInvalidGender, nil)
		}
		updates["gender"] = gender
	}
	if update.AvatarURL != nil {
		avatarURL := normalize(*update.AvatarURL)
		if len(avatarURL) > maxAvatarURLLength {
			return Profile{}, apperr.New(apperr.KindValidation, opUpdateProfile, "avatar_length", MessageInvalidAvatar, nil)
		}
		updates["avatar_url"] = avatarURL
	}
	updates["updated_at"] = s.now().UTC()

	if _, err := s.ProfileByID(ctx, userID); err != nil {
		return Profile{}, err
	}
	err := s.db.WithContext(ctx).Model(&Profile{}).Where("id = ?", userID).Updates(updates).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Profile{}, apperr.New(apperr.KindConflict, opUpdateProfile, "username_taken", MessageUsernameTaken, err)
	}
	if err != nil {
		s.logError(opUpdateProfile, "update_failed", err, zap.String("user_id", userID))
		return Profile{}, apperr.Upstream(opUpdateProfile, "update_failed", err)
	}
	return s.ProfileByID(ctx, userID)
}

func (s *Service) findByID(ctx context.Context, userID string) (Profile, bool, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}
	return profile, true, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("profile service error", attrs...)
}
