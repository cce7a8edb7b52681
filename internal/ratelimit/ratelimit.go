// Package ratelimit counts requests per key inside fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether another request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Policy bounds the number of requests per window.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// RedisLimiter shares counters across API instances.
type RedisLimiter struct {
	client *redis.Client
	policy Policy
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, policy Policy) *RedisLimiter {
	return &RedisLimiter{client: client, policy: policy}
}

// Allow increments the counter for key and starts the window on the first hit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	counterKey := fmt.Sprintf("rate_limit:%s:%s", l.policy.Name, key)
	count, err := l.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, counterKey, l.policy.Window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}
	return count <= int64(l.policy.Limit), nil
}

// MemoryLimiter keeps one fixed-window counter per key in process, with the same semantics as RedisLimiter:
// the first hit opens a window of Window length and at most Limit hits are allowed inside it. Expired
// windows are evicted by Sweep.
type MemoryLimiter struct {
	mu      sync.Mutex
	policy  Policy
	windows map[string]*memoryWindow
	clock   func() time.Time
}

type memoryWindow struct {
	count     int
	expiresAt time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter(policy Policy, clock func() time.Time) *MemoryLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLimiter{
		policy:  policy,
		windows: make(map[string]*memoryWindow),
		clock:   clock,
	}
}

// Allow counts one hit for key, opening a new window when none is live.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	window, ok := l.windows[key]
	if !ok || !now.Before(window.expiresAt) {
		window = &memoryWindow{expiresAt: now.Add(l.policy.Window)}
		l.windows[key] = window
	}
	window.count++
	return window.count <= l.policy.Limit, nil
}

// Sweep drops windows that have ended.
func (l *MemoryLimiter) Sweep() {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, window := range l.windows {
		if !now.Before(window.expiresAt) {
			delete(l.windows, key)
		}
	}
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *MemoryLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// PasswordResetPolicy bounds password reset requests per client address.
var PasswordResetPolicy = Policy{Name: "password_reset", Limit: 3, Window: 15 * time.Minute}
