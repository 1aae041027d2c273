package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestBucket(t *testing.T, capacity int, window time.Duration) (*RedisTokenBucket, *time.Time) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bucket, err := NewRedisTokenBucket(client, capacity, window, "")
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	bucket.now = func() time.Time { return now }
	return bucket, &now
}

func TestRedisTokenBucketRefusesBeyondCapacity(t *testing.T) {
	bucket, _ := newTestBucket(t, 2, time.Minute)
	ctx := context.Background()

	first, err := bucket.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, first.Allowed)
	require.Equal(t, int64(1), first.Remaining)

	second, err := bucket.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, second.Allowed)

	third, err := bucket.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, third.Allowed)
	require.Equal(t, 30*time.Second, third.RetryAfter)

	other, err := bucket.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.True(t, other.Allowed)
}

func TestRedisTokenBucketRefills(t *testing.T) {
	bucket, now := newTestBucket(t, 2, time.Minute)
	ctx := context.Background()

	for range 2 {
		d, err := bucket.Allow(ctx, "client")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	*now = now.Add(30 * time.Second)
	d, err := bucket.Allow(ctx, "client")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Zero(t, d.Remaining)
}

func TestRedisTokenBucketAllowN(t *testing.T) {
	bucket, _ := newTestBucket(t, 5, time.Minute)
	ctx := context.Background()

	d, err := bucket.AllowN(ctx, "batch", 4)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, int64(1), d.Remaining)

	d, err = bucket.AllowN(ctx, "batch", 2)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	_, err = bucket.AllowN(ctx, "batch", 0)
	require.Error(t, err)
	_, err = bucket.AllowN(ctx, "batch", 6)
	require.Error(t, err)
}

func TestNewRedisTokenBucketValidates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	_, err := NewRedisTokenBucket(nil, 1, time.Second, "")
	require.Error(t, err)
	_, err = NewRedisTokenBucket(client, 0, time.Second, "")
	require.Error(t, err)
	_, err = NewRedisTokenBucket(client, 1, 0, "")
	require.Error(t, err)
}
