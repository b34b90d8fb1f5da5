// internal/service/sale/domain/order.go
package domain

import (
	"fmt"
	"math"
	"slices"
)

// Order 是订单（record）聚合的根实体：某个用户对某件商品某个数量的预占
type Order struct {
	ID            uint64
	ItemID        uint64
	CustomerID    uint64
	DestinationID uint64
	Quantity      int64
	Status        Status
	PaidAmount    int64 // 支付时实际扣款金额，退款按它原路返还
}

// NewCartOrder 用于创建一个新的购物车订单，初始状态为 cart
func NewCartOrder(itemID, customerID, destinationID uint64, quantity int64) (*Order, error) {
	if itemID == 0 || customerID == 0 {
		return nil, fmt.Errorf("%w: cart line needs item and customer", ErrInvalidOperation)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: cannot shrink a cart line that does not exist", ErrInvalidOperation)
	}
	return &Order{
		ItemID:        itemID,
		CustomerID:    customerID,
		DestinationID: destinationID,
		Quantity:      quantity,
		Status:        StatusCart,
	}, nil
}

// AddQuantity 调整购物车数量，只允许在 cart 状态下进行
func (o *Order) AddQuantity(delta int64) error {
	if o.Status != StatusCart {
		return fmt.Errorf("%w: quantity can only change in cart, status is %s", ErrInvalidState, o.Status)
	}
	next := o.Quantity + delta
	if next < 0 {
		return fmt.Errorf("%w: cart holds %d, requested change %d", ErrInsufficientStock, o.Quantity, delta)
	}
	o.Quantity = next
	return nil
}

// Apply 沿状态图走一条边，源状态不匹配时返回 ErrInvalidState
func (o *Order) Apply(t Transition) error {
	if !t.IsStateEdge() {
		return fmt.Errorf("%w: %q is not a status transition", ErrInvalidOperation, t)
	}
	if !t.Allows(o.Status) {
		return fmt.Errorf("%w: can't %s, status is %s", ErrInvalidState, t, o.Status)
	}
	o.Status = t.Target()
	return nil
}

// Reconcile 由运维在核对远端余额后，把卡在补偿失败状态的订单移到指定状态
func (o *Order) Reconcile(to Status) error {
	if !o.Status.NeedsReconciliation() {
		return fmt.Errorf("%w: order %d does not need reconciliation (status %s)", ErrInvalidState, o.ID, o.Status)
	}
	if !slices.Contains(ReconcileTargets(o.Status), to) {
		return fmt.Errorf("%w: can't reconcile %s to %s", ErrInvalidOperation, o.Status, to)
	}
	o.Status = to
	return nil
}

// ChangeDestination 修改收货地址，配送中和已签收的订单不可修改
func (o *Order) ChangeDestination(destinationID uint64) error {
	if slices.Contains(destinationFrozen, o.Status) {
		return fmt.Errorf("%w: can't change destination, status is %s", ErrInvalidState, o.Status)
	}
	o.DestinationID = destinationID
	return nil
}

// Amount 计算订单总金额（单价 × 数量）
func (o *Order) Amount(price int64) (int64, error) {
	if price < 0 || o.Quantity < 0 {
		return 0, fmt.Errorf("%w: negative price or quantity", ErrInvalidOperation)
	}
	if o.Quantity != 0 && price > math.MaxInt64/o.Quantity {
		return 0, fmt.Errorf("%w: amount overflows", ErrInvalidOperation)
	}
	return price * o.Quantity, nil
}

// OrderLine 通过 (商品, 用户, 地址) 定位订单，并限定可接受的状态集合
type OrderLine struct {
	Item          ItemRef
	CustomerID    uint64
	DestinationID uint64
	Statuses      []Status
}

// OrderRef 是订单选择器：按 ID，或按订单行
type OrderRef struct {
	ID   uint64
	Line *OrderLine
}

func OrderByID(id uint64) OrderRef { return OrderRef{ID: id} }

func OrderByLine(line OrderLine) OrderRef { return OrderRef{Line: &line} }

// Validate 检查选择器恰好指定了一个变体
func (r OrderRef) Validate() error {
	switch {
	case r.ID != 0 && r.Line != nil:
		return fmt.Errorf("%w: order selector must be either id or line, not both", ErrInvalidOperation)
	case r.ID == 0 && r.Line == nil:
		return fmt.Errorf("%w: order selector is empty", ErrInvalidOperation)
	case r.Line != nil:
		if err := r.Line.Item.Validate(); err != nil {
			return err
		}
		if r.Line.CustomerID == 0 {
			return fmt.Errorf("%w: order line needs a customer", ErrInvalidOperation)
		}
	}
	return nil
}
