package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close(); mr.Close() })
	return rdb
}

func TestRedisLockMutualExclusion(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "sched:daily-automation", time.Minute)
	b := NewRedisLock(rdb, "sched:daily-automation", time.Minute)

	got, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, got, "second instance must not acquire the same key")
}

func TestRedisLockReleaseOnlyByOwner(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "sched:cleanup", time.Minute)
	b := NewRedisLock(rdb, "sched:cleanup", time.Minute)

	got, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, got)

	// A non-owner release must not free the lock.
	require.NoError(t, b.Release(ctx))
	got, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, got)

	require.NoError(t, a.Release(ctx))
	got, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestRedisLockExtendOnlyByOwner(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "sched:metrics-collection", time.Minute)
	b := NewRedisLock(rdb, "sched:metrics-collection", time.Minute)

	got, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, got)

	require.NoError(t, a.Extend(ctx, 5*time.Minute))
	ttl, err := rdb.PTTL(ctx, "lock:sched:metrics-collection").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute, "owner extend must push the TTL out")

	// A non-owner extend is a no-op.
	require.NoError(t, b.Extend(ctx, time.Hour))
	ttl, err = rdb.PTTL(ctx, "lock:sched:metrics-collection").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 5*time.Minute)
}

func TestRedisLockIndependentKeys(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	a := NewRedisLock(rdb, "sched:health-check", time.Minute)
	b := NewRedisLock(rdb, "sched:performance-monitor", time.Minute)

	got, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, got)
}
