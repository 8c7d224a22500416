package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersaga/internal/pkg/redis"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l, err := NewRedisLocker(redis.NewFromClient(rdb), ttl)
	require.NoError(t, err)
	l.retry = 5 * time.Millisecond
	return l, mr
}

func TestRedisLockerSetsLease(t *testing.T) {
	l, mr := newRedisLocker(t, time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "order:1:payment")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:order:1:payment"))
	assert.Equal(t, time.Minute, mr.TTL("lock:order:1:payment"))

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(waitCtx, "order:1:payment")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.Acquire(ctx, "order:2:payment")
	require.NoError(t, err)
	other()

	release()
	assert.False(t, mr.Exists("lock:order:1:payment"))
	again, err := l.Acquire(ctx, "order:1:payment")
	require.NoError(t, err)
	again()
}

func TestRedisLockerReleaseKeepsSuccessorLease(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "order:3:coupon")
	require.NoError(t, err)
	first, err := mr.Get("lock:order:3:coupon")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	current, err := l.Acquire(ctx, "order:3:coupon")
	require.NoError(t, err)
	second, err := mr.Get("lock:order:3:coupon")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	stale()
	got, err := mr.Get("lock:order:3:coupon")
	require.NoError(t, err)
	assert.Equal(t, second, got, "an expired holder must not free its successor's lock")

	current()
	assert.False(t, mr.Exists("lock:order:3:coupon"))
}

func TestRedisLockerSurfacesConnectionErrors(t *testing.T) {
	l, mr := newRedisLocker(t, time.Second)
	mr.Close()

	_, err := l.Acquire(context.Background(), "order:4:payment")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire redis lock order:4:payment")
}
