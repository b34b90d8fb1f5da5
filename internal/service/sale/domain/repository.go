// internal/service/sale/domain/repository.go
package domain

import "context"

// ItemRepository 定义了商品库存的持久化接口。
// 它位于领域层，但由基础设施层实现。
type ItemRepository interface {
	// FindItem 按选择器查找商品，不存在时返回 ErrNotFound。
	// 在事务内调用时实现应当对该行加排他锁。
	FindItem(ctx context.Context, ref ItemRef) (*Item, error)

	// InsertItem 插入商品并回填 ID，名称重复返回 ErrAlreadyExists。
	InsertItem(ctx context.Context, item *Item) error

	// SaveItem 按主键覆盖价格与库存。
	SaveItem(ctx context.Context, item *Item) error

	ListItems(ctx context.Context, inStockOnly bool) ([]*Item, error)
}

// OrderRepository 定义了订单的持久化接口。
type OrderRepository interface {
	FindOrder(ctx context.Context, id uint64) (*Order, error)

	// FindOrderLine 查找 (商品, 用户, 地址) 上状态属于 statuses 的订单，不存在返回 ErrNotFound。
	FindOrderLine(ctx context.Context, itemID, customerID, destinationID uint64, statuses []Status) (*Order, error)

	// InsertOrder 插入订单并回填 ID。
	InsertOrder(ctx context.Context, order *Order) error

	// SaveOrder 按主键覆盖数量、地址和状态。
	SaveOrder(ctx context.Context, order *Order) error

	// CompareAndSetStatus 仅当持久化状态属于 from 时才更新为 to。
	// 订单不存在返回 ErrNotFound，状态不匹配返回 ErrInvalidState。
	CompareAndSetStatus(ctx context.Context, id uint64, from []Status, to Status) error

	ListOrdersByCustomer(ctx context.Context, customerID uint64) ([]*Order, error)
	ListOrdersByStatus(ctx context.Context, status Status) ([]*Order, error)
}

// Store 聚合了两个仓储，并提供本地事务。
// fn 返回错误或 panic 时事务回滚，未显式成功的事务绝不会留下部分写入。
type Store interface {
	ItemRepository
	OrderRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
