// internal/service/sale/domain/item.go
package domain

import (
	"fmt"
	"strings"
)

// Item 是可售卖的库存单元
type Item struct {
	ID     uint64
	Name   string
	Kind   string
	Price  int64 // 最小货币单位
	Remain int64
}

// NewItem 用于创建一个新的商品实例，ID 由存储层分配
func NewItem(name, kind string, price, remain int64) (*Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidOperation)
	}
	if price < 0 || remain < 0 {
		return nil, fmt.Errorf("%w: price and stock must not be negative", ErrInvalidOperation)
	}
	return &Item{Name: name, Kind: strings.TrimSpace(kind), Price: price, Remain: remain}, nil
}

// AdjustStock 调整剩余库存。
// force 为 true 时直接覆盖为 delta（管理员重置），否则在当前库存上累加并检查下溢。
func (i *Item) AdjustStock(delta int64, force bool) error {
	if force {
		if delta < 0 {
			return fmt.Errorf("%w: stock cannot be reset to %d", ErrInvalidOperation, delta)
		}
		i.Remain = delta
		return nil
	}
	next := i.Remain + delta
	if next < 0 {
		return fmt.Errorf("%w: item %q has %d left, requested change %d", ErrInsufficientStock, i.Name, i.Remain, delta)
	}
	i.Remain = next
	return nil
}

// SetPrice 覆盖单价，不影响库存
func (i *Item) SetPrice(price int64) error {
	if price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidOperation)
	}
	i.Price = price
	return nil
}

// ItemRef 是商品选择器：按 ID 或按名称二选一。
// 每个操作开始时都会先把它解析成规范的商品 ID，之后不再传递这个模糊值。
type ItemRef struct {
	ID   uint64
	Name string
}

func ItemByID(id uint64) ItemRef { return ItemRef{ID: id} }

func ItemByName(name string) ItemRef { return ItemRef{Name: strings.TrimSpace(name)} }

// Validate 检查选择器恰好指定了一个变体
func (r ItemRef) Validate() error {
	switch {
	case r.ID != 0 && r.Name != "":
		return fmt.Errorf("%w: item selector must be either id or name, not both", ErrInvalidOperation)
	case r.ID == 0 && r.Name == "":
		return fmt.Errorf("%w: item selector is empty", ErrInvalidOperation)
	}
	return nil
}

func (r ItemRef) String() string {
	if r.ID != 0 {
		return fmt.Sprintf("item#%d", r.ID)
	}
	return fmt.Sprintf("item(%s)", r.Name)
}
