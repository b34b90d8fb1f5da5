// internal/service/sale/infrastructure/memory_store.go
package infrastructure

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"nexus-sale/internal/service/sale/domain"
)

// MemoryStore 是 domain.Store 的内存实现，用于单元测试和 STORE_DRIVER=memory。
// 所有操作共用一把全局锁；事务持有这把锁直到结束，出错或 panic 时恢复快照。
type MemoryStore struct {
	mu   *sync.Mutex
	data *memoryData
	inTx bool
}

type memoryData struct {
	items       map[uint64]domain.Item
	orders      map[uint64]domain.Order
	nextItemID  uint64
	nextOrderID uint64
}

func (d *memoryData) clone() memoryData {
	return memoryData{
		items:       maps.Clone(d.items),
		orders:      maps.Clone(d.orders),
		nextItemID:  d.nextItemID,
		nextOrderID: d.nextOrderID,
	}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu: &sync.Mutex{},
		data: &memoryData{
			items:  make(map[uint64]domain.Item),
			orders: make(map[uint64]domain.Order),
		},
	}
}

func (s *MemoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx domain.Store) error) (err error) {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.data.clone()
	tx := &MemoryStore{mu: s.mu, data: s.data, inTx: true}
	defer func() {
		if r := recover(); r != nil {
			*s.data = snapshot
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		*s.data = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) FindItem(_ context.Context, ref domain.ItemRef) (*domain.Item, error) {
	defer s.lock()()
	if ref.ID != 0 {
		item, ok := s.data.items[ref.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
		}
		return &item, nil
	}
	for _, item := range s.data.items {
		if item.Name == ref.Name {
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
}

func (s *MemoryStore) InsertItem(_ context.Context, item *domain.Item) error {
	defer s.lock()()
	for _, existing := range s.data.items {
		if existing.Name == item.Name {
			return fmt.Errorf("%w: item %q", domain.ErrAlreadyExists, item.Name)
		}
	}
	s.data.nextItemID++
	item.ID = s.data.nextItemID
	s.data.items[item.ID] = *item
	return nil
}

func (s *MemoryStore) SaveItem(_ context.Context, item *domain.Item) error {
	defer s.lock()()
	existing, ok := s.data.items[item.ID]
	if !ok {
		return fmt.Errorf("%w: item#%d", domain.ErrNotFound, item.ID)
	}
	existing.Price = item.Price
	existing.Remain = item.Remain
	s.data.items[item.ID] = existing
	return nil
}

func (s *MemoryStore) ListItems(_ context.Context, inStockOnly bool) ([]*domain.Item, error) {
	defer s.lock()()
	out := make([]*domain.Item, 0, len(s.data.items))
	for _, id := range slices.Sorted(maps.Keys(s.data.items)) {
		item := s.data.items[id]
		if inStockOnly && item.Remain <= 0 {
			continue
		}
		out = append(out, &item)
	}
	return out, nil
}

func (s *MemoryStore) FindOrder(_ context.Context, id uint64) (*domain.Order, error) {
	defer s.lock()()
	order, ok := s.data.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	return &order, nil
}

func (s *MemoryStore) FindOrderLine(_ context.Context, itemID, customerID, destinationID uint64, statuses []domain.Status) (*domain.Order, error) {
	defer s.lock()()
	for _, id := range slices.Sorted(maps.Keys(s.data.orders)) {
		order := s.data.orders[id]
		if order.ItemID == itemID && order.CustomerID == customerID &&
			order.DestinationID == destinationID && slices.Contains(statuses, order.Status) {
			return &order, nil
		}
	}
	return nil, fmt.Errorf("%w: order line (item %d, user %d, destination %d)", domain.ErrNotFound, itemID, customerID, destinationID)
}

func (s *MemoryStore) InsertOrder(_ context.Context, order *domain.Order) error {
	defer s.lock()()
	s.data.nextOrderID++
	order.ID = s.data.nextOrderID
	s.data.orders[order.ID] = *order
	return nil
}

func (s *MemoryStore) SaveOrder(_ context.Context, order *domain.Order) error {
	defer s.lock()()
	existing, ok := s.data.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: order %d", domain.ErrNotFound, order.ID)
	}
	existing.Quantity = order.Quantity
	existing.DestinationID = order.DestinationID
	existing.Status = order.Status
	existing.PaidAmount = order.PaidAmount
	s.data.orders[order.ID] = existing
	return nil
}

func (s *MemoryStore) CompareAndSetStatus(_ context.Context, id uint64, from []domain.Status, to domain.Status) error {
	defer s.lock()()
	order, ok := s.data.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	if !slices.Contains(from, order.Status) {
		return fmt.Errorf("%w: order %d is %s, expected one of %v", domain.ErrInvalidState, id, order.Status, from)
	}
	order.Status = to
	s.data.orders[id] = order
	return nil
}

func (s *MemoryStore) ListOrdersByCustomer(_ context.Context, customerID uint64) ([]*domain.Order, error) {
	return s.listOrders(func(o domain.Order) bool { return o.CustomerID == customerID }), nil
}

func (s *MemoryStore) ListOrdersByStatus(_ context.Context, status domain.Status) ([]*domain.Order, error) {
	return s.listOrders(func(o domain.Order) bool { return o.Status == status }), nil
}

func (s *MemoryStore) listOrders(match func(domain.Order) bool) []*domain.Order {
	defer s.lock()()
	out := make([]*domain.Order, 0)
	for _, id := range slices.Sorted(maps.Keys(s.data.orders)) {
		order := s.data.orders[id]
		if match(order) {
			out = append(out, &order)
		}
	}
	return out
}
