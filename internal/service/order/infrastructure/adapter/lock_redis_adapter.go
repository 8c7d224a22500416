package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/pkg/redis"
)

const releaseScriptName = "lock_release"

// compare-and-delete so a holder never frees a lock it lost to expiry
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker is a SET NX PX lease lock. The TTL bounds how long a crashed
// holder blocks others.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) (*RedisLocker, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if err := client.LoadScriptFromContent(releaseScriptName, releaseScript); err != nil {
		return nil, err
	}
	return &RedisLocker{client: client, prefix: "lock:", ttl: ttl, retry: 50 * time.Millisecond}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		err := l.client.GetClient().SetArgs(ctx, redisKey, token, goredis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
		if err == nil {
			break
		}
		if !errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("acquire redis lock %s: %w", key, err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return func() {
		// the caller's context may already be done
		ctx := context.WithoutCancel(ctx)
		if _, err := l.client.RunScript(ctx, releaseScriptName, []string{redisKey}, token); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("lock", key).Msg("failed to release redis lock")
		}
	}, nil
}
