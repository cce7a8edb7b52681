package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sddion/projectzg/internal/apperr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	opProviderNew     = "auth.provider.new"
	opSignUp          = "auth.sign_up"
	opSignIn          = "auth.sign_in"
	opSignOut         = "auth.sign_out"
	opRefresh         = "auth.refresh"
	opRequestReset    = "auth.request_password_reset"
	opResetPassword   = "auth.reset_password"
	opUpdatePassword  = "auth.update_password"
	opVerifyToken     = "auth.verify_access_token"
	defaultRefreshTTL = 30 * 24 * time.Hour
	defaultResetTTL   = time.Hour
	tokenTypeBearer   = "bearer"
)

// Messages returned by the provider.
const (
	MessageInvalidCredentials  = "Invalid email or password."
	MessageInvalidSession      = "Invalid or expired token."
	MessageInvalidRefreshToken = "Invalid or expired refresh token."
	MessageInvalidResetToken   = "Reset link is invalid or has expired."
	MessageResetMailFailed     = "Failed to send password reset email. Please try again."
	MessageAccountExists       = "User already registered"
	MessageUsernameTaken       = "Username is already taken"
)

var (
	errMissingDatabase  = errors.New("database handle is required")
	errMissingIssuer    = errors.New("token issuer is required")
	errMissingValidator = errors.New("session validator is required")
	errMissingMailer    = errors.New("reset mailer is required")
	errSessionRevoked   = errors.New("session revoked")
	noOpLogger          = zap.NewNop()
)

// ResetMailer delivers password reset links.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to string, link string) error
}

// PasswordProviderConfig describes the dependencies of the password identity provider.
type PasswordProviderConfig struct {
	Database   *gorm.DB
	Tokens     *TokenIssuer
	Validator  *SessionValidator
	Mailer     ResetMailer
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	Clock      func() time.Time
	Logger     *zap.Logger
}

// PasswordProvider is an identity provider backed by the relational store.
type PasswordProvider struct {
	db         *gorm.DB
	tokens     *TokenIssuer
	validator  *SessionValidator
	mailer     ResetMailer
	refreshTTL time.Duration
	resetTTL   time.Duration
	clock      func() time.Time
	logger     *zap.Logger
}

// NewPasswordProvider validates the configuration and constructs the provider.
func NewPasswordProvider(cfg PasswordProviderConfig) (*PasswordProvider, error) {
	if cfg.Database == nil {
		return nil, apperr.Upstream(opProviderNew, "missing_database", errMissingDatabase)
	}
	if cfg.Tokens == nil {
		return nil, apperr.Upstream(opProviderNew, "missing_issuer", errMissingIssuer)
	}
	if cfg.Validator == nil {
		return nil, apperr.Upstream(opProviderNew, "missing_validator", errMissingValidator)
	}
	if cfg.Mailer == nil {
		return nil, apperr.Upstream(opProviderNew, "missing_mailer", errMissingMailer)
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	resetTTL := cfg.ResetTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &PasswordProvider{
		db:         cfg.Database,
		tokens:     cfg.Tokens,
		validator:  cfg.Validator,
		mailer:     cfg.Mailer,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		clock:      clock,
		logger:     logger,
	}, nil
}

// SignUp registers a password identity. The request is normalized and checked against the credential rules.
func (p *PasswordProvider) SignUp(ctx context.Context, request SignUpRequest) (User, error) {
	request = NormalizeSignUp(request)
	if err := ValidateSignUp(request); err != nil {
		return User{}, err
	}

	var existing int64
	if err := p.db.WithContext(ctx).Model(&Account{}).Where("email = ?", request.Email).Count(&existing).Error; err != nil {
		p.logError(opSignUp, "lookup_failed", err)
		return User{}, apperr.Upstream(opSignUp, "lookup_failed", err)
	}
	if existing > 0 {
		return User{}, apperr.New(apperr.KindConflict, opSignUp, "email_taken", MessageAccountExists, nil)
	}
	// Profiles appear on first sign-in, so accounts still waiting for one hold their username here.
	if err := p.db.WithContext(ctx).Model(&Account{}).Where("username = ?", request.Username).Count(&existing).Error; err != nil {
		p.logError(opSignUp, "lookup_failed", err)
		return User{}, apperr.Upstream(opSignUp, "lookup_failed", err)
	}
	if existing > 0 {
		return User{}, apperr.New(apperr.KindConflict, opSignUp, "username_taken", MessageUsernameTaken, nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		p.logError(opSignUp, "hash_failed", err)
		return User{}, apperr.Upstream(opSignUp, "hash_failed", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		p.logError(opSignUp, "id_generation_failed", err)
		return User{}, apperr.Upstream(opSignUp, "id_generation_failed", err)
	}

	account := Account{
		ID:           id.String(),
		Email:        request.Email,
		PasswordHash: string(hash),
		Username:     request.Username,
		FullName:     request.FullName,
	}
	if err := p.db.WithContext(ctx).Create(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, apperr.New(apperr.KindConflict, opSignUp, "email_taken", MessageAccountExists, err)
		}
		p.logError(opSignUp, "insert_failed", err)
		return User{}, apperr.Upstream(opSignUp, "insert_failed", err)
	}
	return userFromAccount(account), nil
}

// SignIn checks the password and opens a new session. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (p *PasswordProvider) SignIn(ctx context.Context, email string, password string) (Session, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	var account Account
	err := p.db.WithContext(ctx).Where("email = ?", normalized).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, apperr.New(apperr.KindUnauthorized, opSignIn, "invalid_credentials", MessageInvalidCredentials, nil)
	}
	if err != nil {
		p.logError(opSignIn, "lookup_failed", err)
		return Session{}, apperr.Upstream(opSignIn, "lookup_failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Session{}, apperr.New(apperr.KindUnauthorized, opSignIn, "invalid_credentials", MessageInvalidCredentials, nil)
	}

	refreshToken, refreshHash, err := NewRefreshToken()
	if err != nil {
		p.logError(opSignIn, "refresh_token_failed", err)
		return Session{}, apperr.Upstream(opSignIn, "refresh_token_failed", err)
	}
	sessionID, err := uuid.NewV7()
	if err != nil {
		p.logError(opSignIn, "id_generation_failed", err)
		return Session{}, apperr.Upstream(opSignIn, "id_generation_failed", err)
	}
	record := SessionRecord{
		ID:               sessionID.String(),
		UserID:           account.ID,
		RefreshTokenHash: refreshHash,
		ExpiresAt:        p.clock().UTC().Add(p.refreshTTL),
	}
	if err := p.db.WithContext(ctx).Create(&record).Error; err != nil {
		p.logError(opSignIn, "session_insert_failed", err, zap.String("user_id", account.ID))
		return Session{}, apperr.Upstream(opSignIn, "session_insert_failed", err)
	}
	return p.issueSession(opSignIn, account, record.ID, refreshToken)
}

// SignOut revokes the session referenced by the access token. Tokens from a hosted provider carry no
// local session and succeed without effect.
func (p *PasswordProvider) SignOut(ctx context.Context, accessToken string) error {
	identity, err := p.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		return apperr.New(apperr.KindUnauthorized, opSignOut, "invalid_token", MessageInvalidSession, err)
	}
	if identity.SessionID == "" {
		return nil
	}
	if err := p.db.WithContext(ctx).Where("id = ?", identity.SessionID).Delete(&SessionRecord{}).Error; err != nil {
		p.logError(opSignOut, "session_delete_failed", err, zap.String("user_id", identity.UserID))
		return apperr.Upstream(opSignOut, "session_delete_failed", err)
	}
	return nil
}

// Refresh rotates the refresh token of a live session and issues a new access token.
func (p *PasswordProvider) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return Session{}, apperr.New(apperr.KindUnauthorized, opRefresh, "missing_token", MessageInvalidRefreshToken, nil)
	}
	now := p.clock().UTC()

	var record SessionRecord
	err := p.db.WithContext(ctx).
		Where("refresh_token_hash = ? AND expires_at > ?", HashOpaqueToken(token), now).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, apperr.New(apperr.KindUnauthorized, opRefresh, "unknown_token", MessageInvalidRefreshToken, nil)
	}
	if err != nil {
		p.logError(opRefresh, "lookup_failed", err)
		return Session{}, apperr.Upstream(opRefresh, "lookup_failed", err)
	}

	var account Account
	if err := p.db.WithContext(ctx).Where("id = ?", record.UserID).Take(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, apperr.New(apperr.KindUnauthorized, opRefresh, "account_missing", MessageInvalidRefreshToken, nil)
		}
		p.logError(opRefresh, "account_lookup_failed", err, zap.String("user_id", record.UserID))
		return Session{}, apperr.Upstream(opRefresh, "account_lookup_failed", err)
	}

	rotated, rotatedHash, err := NewRefreshToken()
	if err != nil {
		p.logError(opRefresh, "refresh_token_failed", err)
		return Session{}, apperr.Upstream(opRefresh, "refresh_token_failed", err)
	}
	result := p.db.WithContext(ctx).Model(&SessionRecord{}).
		Where("id = ? AND refresh_token_hash = ?", record.ID, record.RefreshTokenHash).
		Updates(map[string]any{
			"refresh_token_hash": rotatedHash,
			"expires_at":         now.Add(p.refreshTTL),
		})
	if result.Error != nil {
		p.logError(opRefresh, "rotate_failed", result.Error, zap.String("user_id", record.UserID))
		return Session{}, apperr.Upstream(opRefresh, "rotate_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Session{}, apperr.New(apperr.KindUnauthorized, opRefresh, "token_reused", MessageInvalidRefreshToken, nil)
	}
	return p.issueSession(opRefresh, account, record.ID, rotated)
}

// RequestPasswordReset mails a single-use reset link. Unknown emails succeed silently.
func (p *PasswordProvider) RequestPasswordReset(ctx context.Context, email string, redirectURL string) error {
	normalized := strings.ToLower(strings.TrimSpace(email))
	var account Account
	err := p.db.WithContext(ctx).Where("email = ?", normalized).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p.logger.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		p.logError(opRequestReset, "lookup_failed", err)
		return apperr.Upstream(opRequestReset, "lookup_failed", err)
	}

	token, tokenHash, err := NewRefreshToken()
	if err != nil {
		p.logError(opRequestReset, "token_failed", err)
		return apperr.Upstream(opRequestReset, "token_failed", err)
	}
	reset := PasswordReset{
		TokenHash: tokenHash,
		UserID:    account.ID,
		ExpiresAt: p.clock().UTC().Add(p.resetTTL),
	}
	if err := p.db.WithContext(ctx).Create(&reset).Error; err != nil {
		p.logError(opRequestReset, "insert_failed", err, zap.String("user_id", account.ID))
		return apperr.Upstream(opRequestReset, "insert_failed", err)
	}

	link, err := resetLink(redirectURL, token)
	if err != nil {
		p.logError(opRequestReset, "link_failed", err)
		return apperr.Upstream(opRequestReset, "link_failed", err)
	}
	if err := p.mailer.SendPasswordReset(ctx, account.Email, link); err != nil {
		p.logError(opRequestReset, "mail_failed", err, zap.String("user_id", account.ID))
		return apperr.New(apperr.KindUpstream, opRequestReset, "mail_failed", MessageResetMailFailed, err)
	}
	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes every session of the account.
func (p *PasswordProvider) ResetPassword(ctx context.Context, token string, password string) error {
	if err := ValidateNewPassword(password); err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return apperr.New(apperr.KindValidation, opResetPassword, "missing_token", MessageInvalidResetToken, nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		p.logError(opResetPassword, "hash_failed", err)
		return apperr.Upstream(opResetPassword, "hash_failed", err)
	}

	now := p.clock().UTC()
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reset PasswordReset
		err := tx.Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", HashOpaqueToken(strings.TrimSpace(token)), now).
			Take(&reset).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.KindValidation, opResetPassword, "invalid_token", MessageInvalidResetToken, nil)
		}
		if err != nil {
			p.logError(opResetPassword, "lookup_failed", err)
			return apperr.Upstream(opResetPassword, "lookup_failed", err)
		}
		consumed := tx.Model(&PasswordReset{}).
			Where("token_hash = ? AND used_at IS NULL", reset.TokenHash).
			Update("used_at", now)
		if consumed.Error != nil {
			p.logError(opResetPassword, "consume_failed", consumed.Error, zap.String("user_id", reset.UserID))
			return apperr.Upstream(opResetPassword, "consume_failed", consumed.Error)
		}
		if consumed.RowsAffected == 0 {
			return apperr.New(apperr.KindValidation, opResetPassword, "invalid_token", MessageInvalidResetToken, nil)
		}
		if err := tx.Model(&Account{}).Where("id = ?", reset.UserID).Update("password_hash", string(hash)).Error; err != nil {
			p.logError(opResetPassword, "update_failed", err, zap.String("user_id", reset.UserID))
			return apperr.Upstream(opResetPassword, "update_failed", err)
		}
		if err := tx.Where("user_id = ?", reset.UserID).Delete(&SessionRecord{}).Error; err != nil {
			p.logError(opResetPassword, "session_revoke_failed", err, zap.String("user_id", reset.UserID))
			return apperr.Upstream(opResetPassword, "session_revoke_failed", err)
		}
		return nil
	})
}

// UpdatePassword replaces the password of a signed-in account.
func (p *PasswordProvider) UpdatePassword(ctx context.Context, userID string, password string) error {
	if err := ValidateNewPassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		p.logError(opUpdatePassword, "hash_failed", err)
		return apperr.Upstream(opUpdatePassword, "hash_failed", err)
	}
	result := p.db.WithContext(ctx).Model(&Account{}).Where("id = ?", userID).Update("password_hash", string(hash))
	if result.Error != nil {
		p.logError(opUpdatePassword, "update_failed", result.Error, zap.String("user_id", userID))
		return apperr.Upstream(opUpdatePassword, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, opUpdatePassword, "account_missing", "Account not found", nil)
	}
	return nil
}

// VerifyAccessToken validates the token and, for locally minted tokens, that its session is still live.
// Errors wrap the session validator sentinels so callers can tell expiry from other failures.
func (p *PasswordProvider) VerifyAccessToken(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := p.validator.ValidateToken(ctx, accessToken)
	if err != nil {
		return Identity{}, err
	}
	identity := IdentityFromClaims(claims)
	if claims.Issuer != p.validator.Issuer() {
		return identity, nil
	}
	if identity.SessionID == "" {
		return Identity{}, fmt.Errorf("%w: missing session", ErrInvalidSessionToken)
	}
	var live int64
	err = p.db.WithContext(ctx).Model(&SessionRecord{}).
		Where("id = ? AND user_id = ?", identity.SessionID, identity.UserID).
		Count(&live).Error
	if err != nil {
		p.logError(opVerifyToken, "session_lookup_failed", err, zap.String("user_id", identity.UserID))
		return Identity{}, apperr.Upstream(opVerifyToken, "session_lookup_failed", err)
	}
	if live == 0 {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, errSessionRevoked)
	}
	return identity, nil
}

func (p *PasswordProvider) issueSession(operation string, account Account, sessionID string, refreshToken string) (Session, error) {
	user := userFromAccount(account)
	accessToken, expiresIn, err := p.tokens.IssueAccessToken(AccessTokenGrant{
		UserID:    account.ID,
		Email:     account.Email,
		SessionID: sessionID,
		Metadata:  user.UserMetadata,
	})
	if err != nil {
		p.logError(operation, "token_issue_failed", err, zap.String("user_id", account.ID))
		return Session{}, apperr.Upstream(operation, "token_issue_failed", err)
	}
	return Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    tokenTypeBearer,
		User:         user,
	}, nil
}

func resetLink(redirectURL string, token string) (string, error) {
	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (p *PasswordProvider) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	p.logger.Error("identity provider error", attrs...)
}
