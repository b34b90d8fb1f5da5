package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nexus-sale/internal/service/sale/domain"
	"nexus-sale/internal/service/sale/domain/port"
	"nexus-sale/internal/service/sale/infrastructure"

	"github.com/stretchr/testify/require"
)

var (
	customer = domain.Caller{UserID: 1, Roles: []string{domain.RoleNormal}}
	stranger = domain.Caller{UserID: 2, Roles: []string{domain.RoleNormal}}
	worker   = domain.Caller{UserID: 50, Roles: []string{domain.RoleWorker}}
	root     = domain.Caller{UserID: 99, Roles: []string{domain.RoleRoot}}
)

// fakeWallet 按用户记账；fail 非 nil 时所有操作都失败，block 为 true 时一直等到 ctx 结束
type fakeWallet struct {
	mu       sync.Mutex
	balances map[uint64]int64
	fail     error
	block    bool
	delay    time.Duration
	calls    int
}

func newFakeWallet(balances map[uint64]int64) *fakeWallet {
	return &fakeWallet{balances: balances}
}

func (w *fakeWallet) Operate(ctx context.Context, target port.WalletTarget, amount int64, force bool) (*port.Balance, error) {
	w.mu.Lock()
	w.calls++
	block, delay, fail := w.block, w.delay, w.fail
	w.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if fail != nil {
		return nil, fail
	}
	if target.Kind != port.TargetUser {
		return nil, errors.New("unsupported target")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	next := w.balances[target.ID] + amount
	if force {
		next = amount
	}
	if next < 0 {
		return nil, fmt.Errorf("balance of user %d would become %d", target.ID, next)
	}
	w.balances[target.ID] = next
	return &port.Balance{ID: target.ID, UserID: target.ID, Num: next}, nil
}

func (w *fakeWallet) setFail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = err
}

func (w *fakeWallet) balance(userID uint64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[userID]
}

// fakeDestinations 把地址 ID 映射到所属用户
type fakeDestinations map[uint64]uint64

func (d fakeDestinations) Resolve(_ context.Context, id uint64) (*port.Destination, error) {
	owner, ok := d[id]
	if !ok {
		return nil, fmt.Errorf("%w: destination %d", domain.ErrNotFound, id)
	}
	return &port.Destination{ID: id, OwnerID: owner, Address: fmt.Sprintf("home %d", id)}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.OrderStatusChanged
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, event *domain.OrderStatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) transitions() []domain.Transition {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Transition, len(p.events))
	for i, e := range p.events {
		out[i] = e.Transition
	}
	return out
}

// flakyStore 拒绝写入指定目标状态，用来模拟补偿写入失败
type flakyStore struct {
	*infrastructure.MemoryStore
	refuse map[domain.Status]bool
}

func (s *flakyStore) CompareAndSetStatus(ctx context.Context, id uint64, from []domain.Status, to domain.Status) error {
	if s.refuse[to] {
		return fmt.Errorf("database unavailable while writing %s", to)
	}
	return s.MemoryStore.CompareAndSetStatus(ctx, id, from, to)
}

type fixture struct {
	svc       *SaleService
	store     domain.Store
	wallet    *fakeWallet
	publisher *recordingPublisher
	widget    *domain.Item
}

// newFixture 准备 widget：单价 10，库存 5；用户 1 余额 100，拥有地址 1
func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	store := infrastructure.NewMemoryStore()
	return newFixtureWithStore(t, store, opts...)
}

func newFixtureWithStore(t *testing.T, store domain.Store, opts ...func(*Deps)) *fixture {
	t.Helper()
	wallet := newFakeWallet(map[uint64]int64{1: 100, 2: 100})
	publisher := &recordingPublisher{}
	deps := Deps{
		Store:         store,
		Wallet:        wallet,
		Destinations:  fakeDestinations{1: 1, 2: 1, 3: 2},
		Publisher:     publisher,
		RemoteTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := NewSaleService(deps)
	require.NoError(t, err)

	widget, err := svc.CreateItem(context.Background(), CreateItemRequest{Name: "widget", Kind: "tool", Price: 10, Remain: 5})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, wallet: wallet, publisher: publisher, widget: widget}
}

func (f *fixture) cart(t *testing.T, qty int64) *domain.Order {
	t.Helper()
	order, err := f.svc.AddToCart(context.Background(), customer, AddToCartRequest{
		Item:          domain.ItemByName("widget"),
		DestinationID: 1,
		Delta:         qty,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) stock(t *testing.T) int64 {
	t.Helper()
	item, err := f.svc.GetItem(context.Background(), domain.ItemByID(f.widget.ID))
	require.NoError(t, err)
	return item.Remain
}

func (f *fixture) status(t *testing.T, id uint64) domain.Status {
	t.Helper()
	order, err := f.store.FindOrder(context.Background(), id)
	require.NoError(t, err)
	return order.Status
}
