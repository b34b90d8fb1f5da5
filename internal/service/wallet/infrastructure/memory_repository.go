package infrastructure

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"nexus-sale/internal/service/wallet/domain"
)

// MemoryRepository 是内存实现，用于测试和 STORE_DRIVER=memory
type MemoryRepository struct {
	mu     *sync.Mutex
	rows   map[uint64]domain.Balance
	nextID *uint64
	inTx   bool
}

func NewMemoryRepository() *MemoryRepository {
	var next uint64
	return &MemoryRepository{mu: &sync.Mutex{}, rows: make(map[uint64]domain.Balance), nextID: &next}
}

func (r *MemoryRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

// Transaction 持有全局锁直到结束，fn 出错或 panic 时恢复快照
func (r *MemoryRepository) Transaction(ctx context.Context, fn func(tx domain.Repository) error) (err error) {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot, next := maps.Clone(r.rows), *r.nextID
	defer func() {
		if p := recover(); p != nil {
			r.restore(snapshot, next)
			panic(p)
		}
		if err != nil {
			r.restore(snapshot, next)
		}
	}()
	return fn(&MemoryRepository{mu: r.mu, rows: r.rows, nextID: r.nextID, inTx: true})
}

func (r *MemoryRepository) restore(rows map[uint64]domain.Balance, next uint64) {
	clear(r.rows)
	maps.Copy(r.rows, rows)
	*r.nextID = next
}

func (r *MemoryRepository) FindByID(_ context.Context, id uint64) (*domain.Balance, error) {
	defer r.lock()()
	b, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: balance %d", domain.ErrNotFound, id)
	}
	return &b, nil
}

func (r *MemoryRepository) FindByUser(_ context.Context, userID uint64) (*domain.Balance, error) {
	defer r.lock()()
	for _, b := range r.rows {
		if b.UserID == userID {
			return &b, nil
		}
	}
	return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
}

func (r *MemoryRepository) Insert(_ context.Context, b *domain.Balance) error {
	defer r.lock()()
	for _, row := range r.rows {
		if row.UserID == b.UserID {
			return fmt.Errorf("%w: user %d already has a balance", domain.ErrInvalidOperation, b.UserID)
		}
	}
	*r.nextID++
	b.ID = *r.nextID
	r.rows[b.ID] = *b
	return nil
}

func (r *MemoryRepository) Save(_ context.Context, b *domain.Balance) error {
	defer r.lock()()
	if _, ok := r.rows[b.ID]; !ok {
		return fmt.Errorf("%w: balance %d", domain.ErrNotFound, b.ID)
	}
	r.rows[b.ID] = *b
	return nil
}
