package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var passwordResetPolicy = Policy{Name: "password_reset", Limit: 3, Window: 15 * time.Minute}

func TestRedisLimiterEnforcesWindow(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, passwordResetPolicy)
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, allowed, "attempt %d should be allowed", attempt)
	}
	allowed, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.True(t, allowed)

	require.Equal(t, 15*time.Minute, server.TTL("rate_limit:password_reset:10.0.0.1"))
	server.FastForward(16 * time.Minute)

	allowed, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRedisLimiterReportsStoreFailure(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	server.Close()

	_, err := NewRedisLimiter(client, passwordResetPolicy).Allow(context.Background(), "10.0.0.1")
	require.Error(t, err)
}

func TestMemoryLimiterEnforcesFixedWindow(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(passwordResetPolicy, func() time.Time { return now })
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, _ := limiter.Allow(ctx, "10.0.0.1")
	require.False(t, allowed)

	allowed, _ = limiter.Allow(ctx, "10.0.0.2")
	require.True(t, allowed)

	now = now.Add(14*time.Minute + 59*time.Second)
	allowed, _ = limiter.Allow(ctx, "10.0.0.1")
	require.False(t, allowed, "the window is still open")

	now = now.Add(time.Second)
	allowed, _ = limiter.Allow(ctx, "10.0.0.1")
	require.True(t, allowed, "a new window opens after fifteen minutes")
}

func TestMemoryLimiterAllowsLimitPerWindowUnderSteadyTraffic(t *testing.T) {
	start := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	now := start
	limiter := NewMemoryLimiter(passwordResetPolicy, func() time.Time { return now })
	ctx := context.Background()

	allowedCount := 0
	for minute := 0; minute < 15; minute++ {
		now = start.Add(time.Duration(minute) * time.Minute)
		for attempt := 0; attempt < 3; attempt++ {
			allowed, err := limiter.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			if allowed {
				allowedCount++
			}
		}
	}
	require.Equal(t, passwordResetPolicy.Limit, allowedCount)
}

func TestMemoryLimiterSweepDropsExpiredWindows(t *testing.T) {
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(passwordResetPolicy, func() time.Time { return now })

	_, _ = limiter.Allow(context.Background(), "idle")
	now = now.Add(20 * time.Minute)
	_, _ = limiter.Allow(context.Background(), "active")
	limiter.Sweep()

	require.NotContains(t, limiter.windows, "idle")
	require.Contains(t, limiter.windows, "active")
}
