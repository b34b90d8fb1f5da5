package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/pkg/metrics"
	"nexus-sale/internal/zookeeper"
)

// ZookeeperLocker 是 port.OrderLocker 的 ZooKeeper 实现（临时顺序节点）。
// 会话断开时节点自动删除，不会留下死锁。
type ZookeeperLocker struct {
	conn zookeeper.Conn
	root string
}

func NewZookeeperLocker(conn zookeeper.Conn, root string) *ZookeeperLocker {
	return &ZookeeperLocker{conn: conn, root: root}
}

func (l *ZookeeperLocker) Acquire(ctx context.Context, orderID uint64) (func(), error) {
	start := time.Now()
	lock, err := zookeeper.NewDistributedLock(l.conn, l.root, fmt.Sprintf("order-%d", orderID))
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, fmt.Errorf("acquire zookeeper lock for order %d: %w", orderID, err)
	}
	metrics.LockWait.WithLabelValues("zookeeper").Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := lock.Unlock(); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msgf("ERROR: [Order: %d] Failed to release zookeeper lock.", orderID)
			}
		})
	}, nil
}
