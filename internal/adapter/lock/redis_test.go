package lock

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T, ttl time.Duration) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLock(rdb, ttl), mr
}

func TestRedisLock_ExclusivePerApplication(t *testing.T) {
	l, mr := newTestLock(t, time.Minute)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "app-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("eval:lock:app-1"))
	assert.Equal(t, time.Minute, mr.TTL("eval:lock:app-1"))

	_, ok, err = l.Acquire(ctx, "app-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.Acquire(ctx, "app-2")
	require.NoError(t, err)
	assert.True(t, ok)

	release(ctx)
	assert.False(t, mr.Exists("eval:lock:app-1"))
	_, ok, err = l.Acquire(ctx, "app-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ReleaseDoesNotStealNewOwner(t *testing.T) {
	l, mr := newTestLock(t, time.Second)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "app-1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = l.Acquire(ctx, "app-1")
	require.NoError(t, err)
	require.True(t, ok)

	release(ctx)
	assert.True(t, mr.Exists("eval:lock:app-1"))
}

func TestRedisLock_RedisDown(t *testing.T) {
	l, mr := newTestLock(t, time.Minute)
	mr.Close()
	_, ok, err := l.Acquire(context.Background(), "app-1")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "op=lock.acquire")
}

func TestNewRedisLock_DefaultTTL(t *testing.T) {
	l := NewRedisLock(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), 0)
	assert.Equal(t, 45*time.Minute, l.ttl)
}
