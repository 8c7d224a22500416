package adapter

import (
	"context"
	"fmt"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/zookeeper"
)

// ZookeeperLocker hands out ephemeral-sequential locks. A holder whose
// session dies loses its lock with it.
type ZookeeperLocker struct {
	conn zookeeper.Conn
	root string
}

func NewZookeeperLocker(conn zookeeper.Conn, root string) *ZookeeperLocker {
	return &ZookeeperLocker{conn: conn, root: root}
}

func (l *ZookeeperLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, l.root, key)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, fmt.Errorf("acquire zookeeper lock %s: %w", key, err)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("lock", key).Msg("failed to release zookeeper lock")
		}
	}, nil
}
