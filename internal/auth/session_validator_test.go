package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionIssuer        = "zg-auth"
	testHostedIssuer         = "https://project.auth.example.com/auth/v1"
	testSessionUserID        = "user-123"
	testSessionUserEmail     = "user@example.com"
)

func newTestValidator(t *testing.T, clock func() time.Time, keys *JWKSKeySource) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret:  []byte(testSessionSigningSecret),
		Issuer:         testSessionIssuer,
		TrustedIssuers: []string{testHostedIssuer},
		Keys:           keys,
		Clock:          clock,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signHS256(t *testing.T, claims SessionClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSessionSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestSessionValidatorValidateToken(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, func() time.Time { return clockNow }, nil)

	signed := signHS256(t, SessionClaims{
		Email:        testSessionUserEmail,
		SessionID:    "session-1",
		UserMetadata: UserMetadata{Username: "tester"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testSessionIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
		},
	})

	claims, err := validator.ValidateToken(context.Background(), signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	identity := IdentityFromClaims(claims)
	if identity.UserID != testSessionUserID {
		t.Fatalf("unexpected user id %q", identity.UserID)
	}
	if identity.Email != testSessionUserEmail {
		t.Fatalf("unexpected email %q", identity.Email)
	}
	if identity.SessionID != "session-1" || identity.Metadata.Username != "tester" {
		t.Fatalf("unexpected identity %#v", identity)
	}
}

func TestSessionValidatorReportsExpiredTokens(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, func() time.Time { return clockNow }, nil)

	signed := signHS256(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testSessionIssuer,
			Subject:   testSessionUserID,
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(-time.Hour)),
		},
	})

	_, err := validator.ValidateToken(context.Background(), signed)
	if !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestSessionValidatorRejectsUntrustedIssuerAndBadSignature(t *testing.T) {
	validator := newTestValidator(t, nil, nil)
	now := time.Now()

	untrusted := signHS256(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   testSessionUserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	if _, err := validator.ValidateToken(context.Background(), untrusted); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token for untrusted issuer, got %v", err)
	}

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testSessionIssuer,
			Subject:   testSessionUserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if _, err := validator.ValidateToken(context.Background(), forged); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token for bad signature, got %v", err)
	}

	if _, err := validator.ValidateToken(context.Background(), "  "); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestSessionValidatorRejectsMissingSubject(t *testing.T) {
	validator := newTestValidator(t, nil, nil)
	signed := signHS256(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testSessionIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if _, err := validator.ValidateToken(context.Background(), signed); !errors.Is(err, ErrMissingSessionSubject) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

func TestSessionValidatorVerifiesHostedTokensUsingJWKS(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	var fetches atomic.Int32
	jwksResponse := map[string]any{
		"keys": []any{map[string]string{
			"kty": "RSA",
			"alg": "RS256",
			"kid": "test-key",
			"use": "sig",
			"n":   encodeBigInt(privateKey.PublicKey.N),
			"e":   encodeBigInt(privateKey.PublicKey.E),
		}},
	}
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(jwksResponse)
	}))
	defer jwksServer.Close()

	keys, err := NewJWKSKeySource(JWKSConfig{
		URL:        jwksServer.URL + "/auth/v1/.well-known/jwks.json",
		HTTPClient: jwksServer.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected key source error: %v", err)
	}
	validator := newTestValidator(t, nil, keys)

	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   testHostedIssuer,
		"sub":   "hosted-user",
		"email": "hosted@example.com",
		"exp":   now.Add(5 * time.Minute).Unix(),
		"iat":   now.Unix(),
	})
	token.Header["kid"] = "test-key"
	signedToken, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		claims, err := validator.ValidateToken(context.Background(), signedToken)
		if err != nil {
			t.Fatalf("expected verification to succeed: %v", err)
		}
		if claims.Subject != "hosted-user" || claims.Email != "hosted@example.com" {
			t.Fatalf("unexpected claims %#v", claims)
		}
	}
	if fetches.Load() != 1 {
		t.Fatalf("expected key set to be fetched once, got %d", fetches.Load())
	}
}

func TestJWKSKeySourceThrottlesUnknownKeyRefetches(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	var fetches atomic.Int32
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []any{map[string]string{
				"kty": "RSA",
				"kid": "known-key",
				"n":   encodeBigInt(privateKey.PublicKey.N),
				"e":   encodeBigInt(privateKey.PublicKey.E),
			}},
		})
	}))
	defer jwksServer.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	keys, err := NewJWKSKeySource(JWKSConfig{
		URL:                jwksServer.URL,
		HTTPClient:         jwksServer.Client(),
		CacheTTL:           time.Hour,
		MinRefreshInterval: time.Minute,
		Clock:              func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected key source error: %v", err)
	}

	if _, err := keys.Lookup(context.Background(), "known-key"); err != nil {
		t.Fatalf("expected the known key to resolve: %v", err)
	}
	for attempt := 0; attempt < 5; attempt++ {
		if _, err := keys.Lookup(context.Background(), fmt.Sprintf("forged-%d", attempt)); !errors.Is(err, errKeyNotFound) {
			t.Fatalf("expected key not found, got %v", err)
		}
	}
	if fetches.Load() != 1 {
		t.Fatalf("expected unknown key ids within the interval to reuse the cache, got %d fetches", fetches.Load())
	}

	now = now.Add(time.Minute)
	if _, err := keys.Lookup(context.Background(), "rotated-key"); !errors.Is(err, errKeyNotFound) {
		t.Fatalf("expected key not found, got %v", err)
	}
	if _, err := keys.Lookup(context.Background(), "rotated-key"); !errors.Is(err, errKeyNotFound) {
		t.Fatalf("expected key not found, got %v", err)
	}
	if fetches.Load() != 2 {
		t.Fatalf("expected one refetch after the interval, got %d fetches", fetches.Load())
	}

	now = now.Add(2 * time.Hour)
	if _, err := keys.Lookup(context.Background(), "known-key"); err != nil {
		t.Fatalf("expected the known key to resolve after expiry: %v", err)
	}
	if fetches.Load() != 3 {
		t.Fatalf("expected an expired cache to refetch, got %d fetches", fetches.Load())
	}
}

func TestSessionValidatorRejectsRS256WithoutKeySource(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": testHostedIssuer,
		"sub": "hosted-user",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	token.Header["kid"] = "test-key"
	signedToken, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	validator := newTestValidator(t, nil, nil)
	if _, err := validator.ValidateToken(context.Background(), signedToken); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestNewJWKSKeySourceRequiresURL(t *testing.T) {
	_, err := NewJWKSKeySource(JWKSConfig{URL: " "})
	if !errors.Is(err, ErrInvalidJWKSConfig) {
		t.Fatalf("expected invalid jwks config error, got %v", err)
	}
}

func TestNewSessionValidatorRequiresSecretAndIssuer(t *testing.T) {
	if _, err := NewSessionValidator(SessionValidatorConfig{Issuer: testSessionIssuer}); !errors.Is(err, ErrMissingSessionSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
	if _, err := NewSessionValidator(SessionValidatorConfig{SigningSecret: []byte("s")}); !errors.Is(err, ErrMissingSessionIssuer) {
		t.Fatalf("expected missing issuer error, got %v", err)
	}
}

func encodeBigInt(value interface{}) string {
	switch v := value.(type) {
	case *big.Int:
		return base64.RawURLEncoding.EncodeToString(v.Bytes())
	case int:
		return base64.RawURLEncoding.EncodeToString(big.NewInt(int64(v)).Bytes())
	default:
		return ""
	}
}
