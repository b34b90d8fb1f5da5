// internal/service/sale/application/dto.go
package application

import "nexus-sale/internal/service/sale/domain"

// CreateItemRequest 是创建商品用例的输入
type CreateItemRequest struct {
	Name   string
	Kind   string
	Price  int64
	Remain int64
}

// AdjustStockRequest 调整库存；Force 为 true 时把库存覆盖为 Delta
type AdjustStockRequest struct {
	Item  domain.ItemRef
	Delta int64
	Force bool
}

type SetPriceRequest struct {
	Item  domain.ItemRef
	Price int64
}

// AddToCartRequest 是加购用例的输入，Delta 为负表示从购物车退回库存
type AddToCartRequest struct {
	Item          domain.ItemRef
	DestinationID uint64
	Delta         int64
}

type ChangeDestinationRequest struct {
	Order         domain.OrderRef
	DestinationID uint64
}

// ReconcileRequest 由运维在核对钱包余额后提交
type ReconcileRequest struct {
	OrderID uint64
	To      domain.Status
}
