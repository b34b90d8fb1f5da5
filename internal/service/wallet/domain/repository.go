// internal/service/wallet/domain/repository.go
package domain

import "context"

// Repository 定义了余额的持久化接口，事务内的读取需要加行锁
type Repository interface {
	FindByID(ctx context.Context, id uint64) (*Balance, error)
	FindByUser(ctx context.Context, userID uint64) (*Balance, error)
	Insert(ctx context.Context, b *Balance) error
	Save(ctx context.Context, b *Balance) error
	Transaction(ctx context.Context, fn func(tx Repository) error) error
}
