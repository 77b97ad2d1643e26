package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestNoOpRateLimiter(t *testing.T) {
	var limiter RateLimiter = NoOpRateLimiter{}
	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.NoError(t, limiter.Close())
}

func TestRedisRateLimiter_Limit(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()

	limiter := NewWithClient(client, 3, time.Minute)
	defer limiter.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed, "budgets are per key")

	assert.True(t, mr.Exists(keyPrefix+"10.0.0.1"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"10.0.0.1"))
}

func TestRedisRateLimiter_WindowSlides(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewWithClient(client, 2, time.Second).(*redisRateLimiter)
	limiter.now = func() time.Time { return now }
	defer limiter.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed)

	now = now.Add(1500 * time.Millisecond)
	allowed, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed, "old entries fall out of the window")
}

func TestRedisRateLimiter_SameInstantIsCountedTwice(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()

	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewWithClient(client, 5, time.Minute).(*redisRateLimiter)
	limiter.now = func() time.Time { return fixed }

	for i := 0; i < 2; i++ {
		_, err := limiter.Allow(context.Background(), "k")
		require.NoError(t, err)
	}
	members, err := mr.ZMembers(keyPrefix + "k")
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestRedisRateLimiter_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	limiter := NewWithClient(client, 1, time.Minute)
	mr.Close()

	_, err := limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewRedisRateLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr()+"/0", 10, time.Minute)
	require.NoError(t, err)
	assert.NoError(t, limiter.Close())

	_, err = NewRedisRateLimiter("not a url", 10, time.Minute)
	assert.Error(t, err)
}
