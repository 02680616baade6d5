package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "palmyra:lock:"), mr
}

func TestRedisAcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t)

	lease, err := locker.Acquire(ctx, "tenant-a", time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists("palmyra:lock:tenant-a"))

	_, err = locker.Acquire(ctx, "tenant-a", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	other, err := locker.Acquire(ctx, "tenant-b", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	require.False(t, mr.Exists("palmyra:lock:tenant-a"))

	_, err = locker.Acquire(ctx, "tenant-a", time.Minute)
	require.NoError(t, err)
}

func TestRedisReleaseKeepsForeignLease(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t)

	stale, err := locker.Acquire(ctx, "tenant-a", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "tenant-a", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	require.True(t, mr.Exists("palmyra:lock:tenant-a"))

	require.NoError(t, fresh.Release(ctx))
	require.False(t, mr.Exists("palmyra:lock:tenant-a"))
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	locker := NewLocal()
	locker.now = func() time.Time { return now }

	lease, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "k", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	now = now.Add(2 * time.Minute)
	next, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// the expired lease must not free the new holder
	require.NoError(t, lease.Release(ctx))
	_, err = locker.Acquire(ctx, "k", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, next.Release(ctx))
	_, err = locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
}
