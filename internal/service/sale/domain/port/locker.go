package port

import "context"

// OrderLocker 保证同一订单上同时只有一个状态变更在进行。
type OrderLocker interface {
	// Acquire 阻塞直到拿到锁或 ctx 结束；返回的 release 可以安全地多次调用。
	Acquire(ctx context.Context, orderID uint64) (release func(), err error)
}
