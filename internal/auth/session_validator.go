package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSessionSigningKey = errors.New("session validator: signing key required")
	ErrMissingSessionIssuer     = errors.New("session validator: issuer required")
	ErrMissingSessionToken      = errors.New("session validator: token required")
	ErrInvalidSessionToken      = errors.New("session validator: invalid token")
	ErrExpiredSessionToken      = errors.New("session validator: token expired")
	ErrMissingSessionSubject    = errors.New("session validator: subject required")
)

// UserMetadata is the profile hint carried inside access tokens.
type UserMetadata struct {
	Username  string `json:"username,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// SessionClaims mirrors the JWT payload of an access token.
type SessionClaims struct {
	Email        string       `json:"email,omitempty"`
	SessionID    string       `json:"session_id,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller resolved from an access token.
type Identity struct {
	UserID    string
	Email     string
	SessionID string
	Issuer    string
	Metadata  UserMetadata
}

// SessionValidatorConfig describes how to validate access tokens.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	// TrustedIssuers lists additional issuers, typically a hosted identity provider whose RS256 keys are
	// published at a JWKS endpoint.
	TrustedIssuers []string
	Keys           *JWKSKeySource
	Clock          func() time.Time
}

// SessionValidator validates HS256 access tokens signed with the shared secret and, when a key source is
// configured, RS256 tokens signed by a trusted hosted provider.
type SessionValidator struct {
	signingSecret []byte
	issuer        string
	issuers       map[string]struct{}
	keys          *JWKSKeySource
	clock         func() time.Time
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingSessionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	issuers := map[string]struct{}{issuer: {}}
	for _, trusted := range cfg.TrustedIssuers {
		if normalized := strings.TrimSpace(trusted); normalized != "" {
			issuers[normalized] = struct{}{}
		}
	}
	return &SessionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		issuers:       issuers,
		keys:          cfg.Keys,
		clock:         clock,
	}, nil
}

// Issuer returns the issuer of locally minted tokens.
func (v *SessionValidator) Issuer() string {
	return v.issuer
}

// ValidateToken validates the supplied JWT string and returns the parsed claims.
func (v *SessionValidator) ValidateToken(ctx context.Context, tokenString string) (SessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			switch t.Method.Alg() {
			case jwt.SigningMethodHS256.Alg():
				return v.signingSecret, nil
			case jwt.SigningMethodRS256.Alg():
				if v.keys == nil {
					return nil, fmt.Errorf("%w: no key source for %s", ErrInvalidSessionToken, t.Method.Alg())
				}
				keyID, _ := t.Header["kid"].(string)
				if keyID == "" {
					return nil, errMissingKeyIdentifier
				}
				return v.keys.Lookup(ctx, keyID)
			default:
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidSessionToken, t.Method.Alg())
			}
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredSessionToken
		}
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return SessionClaims{}, ErrInvalidSessionToken
	}
	if _, trusted := v.issuers[claims.Issuer]; !trusted {
		return SessionClaims{}, fmt.Errorf("%w: untrusted issuer %q", ErrInvalidSessionToken, claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	return *claims, nil
}

// IdentityFromClaims converts validated claims into the caller identity.
func IdentityFromClaims(claims SessionClaims) Identity {
	return Identity{
		UserID:    strings.TrimSpace(claims.Subject),
		Email:     strings.TrimSpace(claims.Email),
		SessionID: claims.SessionID,
		Issuer:    claims.Issuer,
		Metadata:  claims.UserMetadata,
	}
}
