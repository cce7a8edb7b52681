package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesAccessTokens(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "zg-auth",
		TokenTTL:      30 * time.Minute,
	})

	tokenString, expiresIn, err := issuer.IssueAccessToken(AccessTokenGrant{
		UserID:    "user-123",
		Email:     "user@example.com",
		SessionID: "session-1",
		Metadata:  UserMetadata{Username: "user_123"},
	})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds %d", expiresIn)
	}

	claims := &SessionClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != "zg-auth" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if claims.SessionID != "session-1" {
		t.Fatalf("unexpected session id %s", claims.SessionID)
	}
	if claims.UserMetadata.Username != "user_123" {
		t.Fatalf("unexpected metadata %#v", claims.UserMetadata)
	}
}

func TestTokenIssuerRejectsMissingSecretAndSubject(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{Issuer: "zg-auth"})
	if _, _, err := issuer.IssueAccessToken(AccessTokenGrant{UserID: "user-1"}); err == nil {
		t.Fatalf("expected error for missing secret")
	}

	issuer = NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret"), Issuer: "zg-auth"})
	if _, _, err := issuer.IssueAccessToken(AccessTokenGrant{}); err == nil {
		t.Fatalf("expected error for missing subject")
	}
}

func TestNewRefreshTokenHashesDeterministically(t *testing.T) {
	token, hash, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" || hash == "" {
		t.Fatalf("expected token and hash")
	}
	if HashOpaqueToken(token) != hash {
		t.Fatalf("expected hash to be derived from token")
	}
	other, _, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other == token {
		t.Fatalf("expected distinct refresh tokens")
	}
}
