package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nexus-sale/internal/service/sale/domain"
	"nexus-sale/internal/service/sale/infrastructure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type actorKey struct{}

func withActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorKey{}, name)
}

func actorFrom(ctx context.Context) string {
	name, _ := ctx.Value(actorKey{}).(string)
	return name
}

// gate 让某个请求在第一次开启事务前停下，事务结束后把结果写进 done
type gate struct {
	reached chan struct{}
	proceed chan struct{}
	done    chan error
	once    sync.Once
}

func newGate() *gate {
	return &gate{reached: make(chan struct{}), proceed: make(chan struct{}), done: make(chan error, 1)}
}

// gatedStore 按 ctx 中的请求名在事务入口处暂停，用来构造确定的交错顺序
type gatedStore struct {
	domain.Store
	gates map[string]*gate
}

func (s *gatedStore) Transaction(ctx context.Context, fn func(tx domain.Store) error) error {
	g := s.gates[actorFrom(ctx)]
	if g == nil {
		return s.Store.Transaction(ctx, fn)
	}
	first := false
	g.once.Do(func() { first = true })
	if !first {
		return s.Store.Transaction(ctx, fn)
	}
	close(g.reached)
	<-g.proceed
	err := s.Store.Transaction(ctx, fn)
	g.done <- err
	return err
}

type orderResult struct {
	order *domain.Order
	err   error
}

// 加购在预检查时没有找到购物车行，随后另一个请求建了这条行并开始支付。
// 加购不能在支付持锁期间把数量加到这条行上，支付金额必须与最终数量一致。
func TestAddToCartDoesNotGrowLineBeingPaid(t *testing.T) {
	ctx := context.Background()
	adder, payer := newGate(), newGate()
	store := &gatedStore{Store: infrastructure.NewMemoryStore(), gates: map[string]*gate{"adder": adder, "payer": payer}}
	f := newFixtureWithStore(t, store)

	added := make(chan orderResult, 1)
	go func() {
		o, err := f.svc.AddToCart(withActor(ctx, "adder"), customer, AddToCartRequest{
			Item: domain.ItemByName("widget"), DestinationID: 1, Delta: 4,
		})
		added <- orderResult{o, err}
	}()
	<-adder.reached

	line := f.cart(t, 1)

	paid := make(chan orderResult, 1)
	go func() {
		o, err := f.svc.Pay(withActor(ctx, "payer"), customer, domain.OrderByID(line.ID))
		paid <- orderResult{o, err}
	}()
	<-payer.reached

	// 加购的第一次事务碰到了没加锁的行，必须回滚
	close(adder.proceed)
	var unlocked *unlockedLineError
	require.ErrorAs(t, <-adder.done, &unlocked)
	assert.Equal(t, line.ID, unlocked.id)

	close(payer.proceed)
	p := <-paid
	require.NoError(t, p.err)
	a := <-added
	require.NoError(t, a.err)

	assert.Equal(t, domain.StatusPay, p.order.Status)
	assert.EqualValues(t, 1, p.order.Quantity)
	assert.EqualValues(t, 10, p.order.PaidAmount)
	assert.EqualValues(t, 90, f.wallet.balance(1))

	// 支付完成后加购落到一条新的购物车行
	assert.NotEqual(t, line.ID, a.order.ID)
	assert.Equal(t, domain.StatusCart, a.order.Status)
	assert.EqualValues(t, 4, a.order.Quantity)
	assert.EqualValues(t, 0, f.stock(t))

	loaded, err := f.store.FindOrder(ctx, line.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, loaded.Quantity)
	assert.EqualValues(t, 10, loaded.PaidAmount)
}

// 支付金额按事务内的数量计算
func TestPayChargesReloadedQuantity(t *testing.T) {
	ctx := context.Background()
	payer := newGate()
	store := &gatedStore{Store: infrastructure.NewMemoryStore(), gates: map[string]*gate{"payer": payer}}
	f := newFixtureWithStore(t, store)
	line := f.cart(t, 1)

	paid := make(chan orderResult, 1)
	go func() {
		o, err := f.svc.Pay(withActor(ctx, "payer"), customer, domain.OrderByID(line.ID))
		paid <- orderResult{o, err}
	}()
	<-payer.reached

	// 绕过订单锁直接改数量，模拟其它进程的写入
	current, err := f.store.FindOrder(ctx, line.ID)
	require.NoError(t, err)
	require.NoError(t, current.AddQuantity(2))
	require.NoError(t, f.store.SaveOrder(ctx, current))

	close(payer.proceed)
	p := <-paid
	require.NoError(t, p.err)
	assert.EqualValues(t, 3, p.order.Quantity)
	assert.EqualValues(t, 30, p.order.PaidAmount)
	assert.EqualValues(t, 70, f.wallet.balance(1))
}

// blockingPublisher 模拟消息队列不可用：一直阻塞到 ctx 结束
type blockingPublisher struct {
	mu          sync.Mutex
	hadDeadline []bool
}

func (p *blockingPublisher) PublishStatusChanged(ctx context.Context, _ *domain.OrderStatusChanged) error {
	_, ok := ctx.Deadline()
	p.mu.Lock()
	p.hadDeadline = append(p.hadDeadline, ok)
	p.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return errors.New("broker unreachable")
	}
}

func TestSlowPublisherDoesNotStallTransitions(t *testing.T) {
	publisher := &blockingPublisher{}
	f := newFixture(t, func(d *Deps) {
		d.Publisher = publisher
		d.PublishTimeout = 20 * time.Millisecond
	})
	order := f.cart(t, 2)

	start := time.Now()
	paid, err := f.svc.Pay(context.Background(), customer, domain.OrderByID(order.ID))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, domain.StatusPay, paid.Status)
	assert.EqualValues(t, 80, f.wallet.balance(1))

	// 订单锁已经释放，后续操作不受影响
	_, err = f.svc.Send(context.Background(), worker, domain.OrderByID(order.ID))
	require.NoError(t, err)

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	require.NotEmpty(t, publisher.hadDeadline)
	for _, ok := range publisher.hadDeadline {
		assert.True(t, ok)
	}
}
