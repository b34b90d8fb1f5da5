// internal/service/sale/application/lock_table.go
package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nexus-sale/internal/pkg/metrics"
)

// LockTable 是进程内的订单锁表：按订单 ID 懒创建，引用计数归零后立即回收。
// 每个条目是容量为 1 的信号量，等待过程可以被 ctx 取消。
type LockTable struct {
	mu      sync.Mutex
	entries map[uint64]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int // 持有者 + 等待者
}

func NewLockTable() *LockTable {
	return &LockTable{entries: make(map[uint64]*lockEntry)}
}

// Acquire 实现 port.OrderLocker
func (t *LockTable) Acquire(ctx context.Context, orderID uint64) (func(), error) {
	start := time.Now()

	t.mu.Lock()
	e, ok := t.entries[orderID]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		t.entries[orderID] = e
	}
	e.refs++
	t.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		t.unref(orderID, e)
		return nil, fmt.Errorf("acquire lock for order %d: %w", orderID, ctx.Err())
	}
	metrics.LockWait.WithLabelValues("memory").Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			t.unref(orderID, e)
		})
	}, nil
}

func (t *LockTable) unref(orderID uint64, e *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.entries, orderID)
	}
}

// Len 返回当前仍被引用的锁条目数
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
