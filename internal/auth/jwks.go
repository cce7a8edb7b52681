package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultJWKSCacheTTL           = 10 * time.Minute
	defaultJWKSMinRefreshInterval = 30 * time.Second
)

var (
	errMissingKeyIdentifier = errors.New("token missing key identifier")
	errKeyNotFound          = errors.New("signing key not found in JWKS")
	errEmptyKeySet          = errors.New("jwks document contained no usable keys")
	errMissingJWKSURL       = errors.New("jwks url configuration required")
	ErrInvalidJWKSConfig    = errors.New("auth: invalid jwks config")
)

// JWKSConfig configures the remote key source of a hosted identity provider.
type JWKSConfig struct {
	URL        string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	// MinRefreshInterval bounds how often an unknown key id may force a refetch of a still-fresh key set.
	MinRefreshInterval time.Duration
	Logger             *zap.Logger
	Clock              func() time.Time
}

// JWKSKeySource resolves RS256 verification keys by key id, caching the published key set. Concurrent
// misses share one fetch, and unknown key ids refetch at most once per refresh interval.
type JWKSKeySource struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
	clock      func() time.Time
	ttl        time.Duration
	fetches    singleflight.Group
	refreshes  *rate.Limiter

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

// NewJWKSKeySource constructs a key source with validated configuration.
func NewJWKSKeySource(cfg JWKSConfig) (*JWKSKeySource, error) {
	jwksURL := strings.TrimSpace(cfg.URL)
	if jwksURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJWKSConfig, errMissingJWKSURL)
	}
	source := &JWKSKeySource{
		url:        jwksURL,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
		ttl:        cfg.CacheTTL,
	}
	if source.httpClient == nil {
		source.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if source.logger == nil {
		source.logger = zap.NewNop()
	}
	if source.clock == nil {
		source.clock = time.Now
	}
	if source.ttl <= 0 {
		source.ttl = defaultJWKSCacheTTL
	}
	interval := cfg.MinRefreshInterval
	if interval <= 0 {
		interval = defaultJWKSMinRefreshInterval
	}
	source.refreshes = rate.NewLimiter(rate.Every(interval), 1)
	return source, nil
}

// Lookup returns the key for keyID. A cold or expired cache always refetches; an unknown key id against a
// fresh cache refetches only when the refresh interval allows it.
func (s *JWKSKeySource) Lookup(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	key, fresh := s.cached(keyID)
	if key != nil {
		return key, nil
	}
	if fresh && !s.refreshes.AllowN(s.clock(), 1) {
		s.logger.Debug("jwks refresh throttled", zap.String("kid", keyID))
		return nil, fmt.Errorf("%w: kid %q", errKeyNotFound, keyID)
	}
	_, err, _ := s.fetches.Do(s.url, func() (any, error) {
		return nil, s.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	if key, _ := s.cached(keyID); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", errKeyNotFound, keyID)
}

func (s *JWKSKeySource) cached(keyID string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keys == nil || s.clock().After(s.expiresAt) {
		return nil, false
	}
	return s.keys[keyID], true
}

func (s *JWKSKeySource) refresh(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("jwks request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	response, err := s.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("jwks fetch: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch: unexpected status %d", response.StatusCode)
	}

	var document struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return fmt.Errorf("jwks decode: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(document.Keys))
	for _, candidate := range document.Keys {
		if !candidate.signsWithRSA() {
			continue
		}
		publicKey, err := candidate.publicKey()
		if err != nil {
			s.logger.Debug("jwk skipped", zap.String("kid", candidate.KeyID), zap.Error(err))
			continue
		}
		keys[candidate.KeyID] = publicKey
	}
	if len(keys) == 0 {
		return errEmptyKeySet
	}

	now := s.clock()
	s.mu.Lock()
	s.keys = keys
	s.expiresAt = now.Add(s.ttl)
	s.mu.Unlock()
	// A completed fetch opens a new interval, so an unknown key id right after it waits.
	s.refreshes.AllowN(now, 1)
	s.logger.Debug("jwks refreshed", zap.String("url", s.url), zap.Int("keys", len(keys)))
	return nil
}

// jsonWebKey is the RSA subset of RFC 7517 used for signature verification.
type jsonWebKey struct {
	KeyType  string `json:"kty"`
	KeyID    string `json:"kid"`
	Use      string `json:"use"`
	Modulus  string `json:"n"`
	Exponent string `json:"e"`
}

func (k jsonWebKey) signsWithRSA() bool {
	return k.KeyType == "RSA" && (k.Use == "" || k.Use == "sig")
}

func (k jsonWebKey) publicKey() (*rsa.PublicKey, error) {
	modulus, err := decodeBase64URLInt(k.Modulus)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	exponent, err := decodeBase64URLInt(k.Exponent)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	if !exponent.IsInt64() || exponent.Int64() < 3 || exponent.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: modulus, E: int(exponent.Int64())}, nil
}

func decodeBase64URLInt(encoded string) (*big.Int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("empty value")
	}
	return new(big.Int).SetBytes(raw), nil
}
