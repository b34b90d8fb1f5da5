package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/pkg/metrics"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	unlockScriptName = "order_unlock"
	// 只有持有者（token 相同）才能删除锁
	unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`
)

// RedisLockClient 是 RedisLocker 依赖的 redis 能力，由 internal/pkg/redis.Client 实现
type RedisLockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	LoadScriptFromContent(name, content string) error
	RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisLocker 是 port.OrderLocker 的 Redis 实现，用于多实例部署。
// 锁带 TTL，持有者崩溃后自动过期。
type RedisLocker struct {
	client     RedisLockClient
	ttl        time.Duration
	retryDelay time.Duration
}

// NewRedisLocker 创建锁适配器，并预加载解锁脚本
func NewRedisLocker(client RedisLockClient, ttl time.Duration) (*RedisLocker, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if err := client.LoadScriptFromContent(unlockScriptName, unlockScript); err != nil {
		return nil, fmt.Errorf("failed to load order unlock script: %w", err)
	}
	return &RedisLocker{client: client, ttl: ttl, retryDelay: 20 * time.Millisecond}, nil
}

func lockKey(orderID uint64) string {
	return fmt.Sprintf("sale:order:lock:{%d}", orderID)
}

func (l *RedisLocker) Acquire(ctx context.Context, orderID uint64) (func(), error) {
	start := time.Now()
	key := lockKey(orderID)
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, errors.Wrapf(err, "acquire redis lock for order %d", orderID)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock for order %d: %w", orderID, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}
	metrics.LockWait.WithLabelValues("redis").Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			// 调用方的 ctx 可能已经取消，解锁用独立的超时
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if _, err := l.client.RunScript(releaseCtx, unlockScriptName, []string{key}, token); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msgf("ERROR: [Order: %d] Failed to release redis lock, it expires in %s.", orderID, l.ttl)
			}
		})
	}, nil
}
