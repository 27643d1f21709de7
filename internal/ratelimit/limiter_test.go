package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/sopmatch/internal/monitoring"
)

func newFallbackLimiter(t *testing.T, cfg Config) *RateLimiter {
	t.Helper()
	// empty address disables Redis, forcing the in-memory path
	client, err := NewRedisClient("", "", 0)
	require.NoError(t, err)
	return NewRateLimiter(client, cfg, monitoring.NewMetrics())
}

func TestFallbackAllowsWithinBurst(t *testing.T) {
	cfg := Config{IPLimitPerMin: 2, ComputeLimitPerMin: 2, BurstMultiplier: 2}
	rl := newFallbackLimiter(t, cfg)

	// burst floor is 5 even for tiny limits
	for i := 0; i < 5; i++ {
		res, err := rl.AllowIP(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should pass within burst", i)
	}

	res, err := rl.AllowIP(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter.Seconds(), 0.0)
}

func TestFallbackKeysAreIndependent(t *testing.T) {
	cfg := Config{IPLimitPerMin: 1, ComputeLimitPerMin: 1, BurstMultiplier: 1}
	rl := newFallbackLimiter(t, cfg)

	for i := 0; i < 5; i++ {
		_, err := rl.AllowIP(context.Background(), "10.0.0.1")
		require.NoError(t, err)
	}
	blocked, err := rl.AllowIP(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	fresh, err := rl.AllowIP(context.Background(), "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, fresh.Allowed)
}

func TestEndpointQuotaSeparateFromIPQuota(t *testing.T) {
	cfg := DefaultConfig()
	rl := newFallbackLimiter(t, cfg)

	ipRes, err := rl.AllowIP(context.Background(), "10.0.0.3")
	require.NoError(t, err)
	epRes, err := rl.AllowEndpoint(context.Background(), "matching", "10.0.0.3", cfg.ComputeLimitPerMin)
	require.NoError(t, err)

	assert.True(t, ipRes.Allowed)
	assert.True(t, epRes.Allowed)
	assert.Equal(t, cfg.IPLimitPerMin, ipRes.Limit)
	assert.Equal(t, cfg.ComputeLimitPerMin, epRes.Limit)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120, cfg.IPLimitPerMin)
	assert.Equal(t, 10, cfg.ComputeLimitPerMin)
	assert.Equal(t, 2, cfg.BurstMultiplier)
}

func TestGetStatsWithoutRedis(t *testing.T) {
	rl := newFallbackLimiter(t, DefaultConfig())

	_, err := rl.AllowIP(context.Background(), "10.0.0.4")
	require.NoError(t, err)

	stats := rl.GetStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 1, stats["fallback_limiters"])
	assert.NotContains(t, stats, "redis_pool")
}
