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

func TestNewSaleServiceRequiresCollaborators(t *testing.T) {
	_, err := NewSaleService(Deps{})
	require.Error(t, err)
	_, err = NewSaleService(Deps{Store: infrastructure.NewMemoryStore()})
	require.Error(t, err)
}

func TestWidgetScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.cart(t, 3)
	assert.Equal(t, domain.StatusCart, order.Status)
	assert.EqualValues(t, 3, order.Quantity)
	assert.EqualValues(t, 2, f.stock(t))

	paid, err := f.svc.Pay(ctx, customer, domain.OrderByID(order.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPay, paid.Status)
	assert.EqualValues(t, 30, paid.PaidAmount)
	assert.EqualValues(t, 70, f.wallet.balance(1))
}

func TestPayRevertsWhenDebitFails(t *testing.T) {
	f := newFixture(t)
	order := f.cart(t, 3)
	f.wallet.setFail(errors.New("wallet unavailable"))

	_, err := f.svc.Pay(context.Background(), customer, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrRemoteService)
	assert.NotErrorIs(t, err, domain.ErrReconciliationRequired)

	assert.Equal(t, domain.StatusCart, f.status(t, order.ID))
	assert.EqualValues(t, 100, f.wallet.balance(1))
	assert.Equal(t, []domain.Transition{domain.TransitionPay, domain.TransitionPayRevert}, f.publisher.transitions())

	// 钱包恢复后可以重新支付
	f.wallet.setFail(nil)
	_, err = f.svc.Pay(context.Background(), customer, domain.OrderByID(order.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 70, f.wallet.balance(1))
}

func TestPayTimeoutTriggersCompensation(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.RemoteTimeout = 20 * time.Millisecond })
	order := f.cart(t, 1)
	f.wallet.block = true

	_, err := f.svc.Pay(context.Background(), customer, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrRemoteService)
	assert.Equal(t, domain.StatusCart, f.status(t, order.ID))
}

func TestPayCompensationFailureRequiresReconciliation(t *testing.T) {
	store := &flakyStore{MemoryStore: infrastructure.NewMemoryStore(), refuse: map[domain.Status]bool{domain.StatusCart: true}}
	f := newFixtureWithStore(t, store)
	order := f.cart(t, 2)
	f.wallet.setFail(errors.New("wallet unavailable"))

	_, err := f.svc.Pay(context.Background(), customer, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrReconciliationRequired)
	require.ErrorIs(t, err, domain.ErrRemoteService)

	var recErr *domain.ReconciliationError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, order.ID, recErr.OrderID)
	assert.Equal(t, domain.TransitionPay, recErr.Transition)
	assert.ErrorContains(t, recErr.CompensationErr, "database unavailable")

	assert.Equal(t, domain.StatusPayFailed, f.status(t, order.ID))
	stuck, err := f.svc.ListOrdersByStatus(context.Background(), worker, domain.StatusPayFailed)
	require.NoError(t, err)
	require.Len(t, stuck, 1)

	// 运维核对钱包后，把订单恢复到 pay（假设扣款其实成功了）
	_, err = f.svc.Reconcile(context.Background(), worker, ReconcileRequest{OrderID: order.ID, To: domain.StatusPay})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Reconcile(context.Background(), root, ReconcileRequest{OrderID: order.ID, To: domain.StatusDiscard})
	require.ErrorIs(t, err, domain.ErrInvalidOperation)
	reconciled, err := f.svc.Reconcile(context.Background(), root, ReconcileRequest{OrderID: order.ID, To: domain.StatusPay})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPay, reconciled.Status)
}

func TestPayThenCancelRestoresWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.cart(t, 3)

	_, err := f.svc.Pay(ctx, customer, domain.OrderByID(order.ID))
	require.NoError(t, err)
	// 支付后改价不影响退款金额
	_, err = f.svc.SetItemPrice(ctx, SetPriceRequest{Item: domain.ItemByID(f.widget.ID), Price: 999})
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, customer, domain.OrderByID(order.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDiscard, cancelled.Status)
	assert.EqualValues(t, 100, f.wallet.balance(1))
}

func TestCancelRevertsWhenCreditFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.cart(t, 3)
	_, err := f.svc.Pay(ctx, customer, domain.OrderByID(order.ID))
	require.NoError(t, err)

	f.wallet.setFail(errors.New("wallet unavailable"))
	_, err = f.svc.Cancel(ctx, customer, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrRemoteService)
	assert.Equal(t, domain.StatusPay, f.status(t, order.ID))
	assert.EqualValues(t, 70, f.wallet.balance(1))
}

func TestCancelCompensationFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: infrastructure.NewMemoryStore(), refuse: map[domain.Status]bool{}}
	f := newFixtureWithStore(t, store)
	ctx := context.Background()
	order := f.cart(t, 1)
	_, err := f.svc.Pay(ctx, customer, domain.OrderByID(order.ID))
	require.NoError(t, err)

	store.refuse[domain.StatusPay] = true
	f.wallet.setFail(errors.New("wallet unavailable"))
	_, err = f.svc.Cancel(ctx, customer, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrReconciliationRequired)
	assert.Equal(t, domain.StatusCancelFailed, f.status(t, order.ID))
}

func TestConcurrentPayExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	order := f.cart(t, 3)
	f.wallet.delay = 10 * time.Millisecond

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Pay(context.Background(), customer, domain.OrderByID(order.ID))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	}
	assert.Equal(t, 1, ok)
	assert.EqualValues(t, 70, f.wallet.balance(1))
}

func TestOutOfOrderTransitionsLeaveOrderUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.cart(t, 1)

	_, err := f.svc.Sign(ctx, customer, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.svc.Send(ctx, worker, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.svc.Consult(ctx, customer, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.svc.Cancel(ctx, customer, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrInvalidState)

	assert.Equal(t, domain.StatusCart, f.status(t, order.ID))
	assert.Zero(t, f.wallet.calls)
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := domain.OrderByID(f.cart(t, 2).ID)

	_, err := f.svc.Pay(ctx, customer, ref)
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, customer, ref)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Send(ctx, worker, ref)
	require.NoError(t, err)

	_, err = f.svc.Sign(ctx, stranger, ref)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Sign(ctx, customer, ref)
	require.NoError(t, err)

	_, err = f.svc.Consult(ctx, worker, ref)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Consult(ctx, customer, ref)
	require.NoError(t, err)

	discarded, err := f.svc.Discard(ctx, worker, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDiscard, discarded.Status)

	// discard 不再动钱
	assert.EqualValues(t, 80, f.wallet.balance(1))
	assert.Equal(t, []domain.Transition{
		domain.TransitionPay, domain.TransitionSend, domain.TransitionSign,
		domain.TransitionConsult, domain.TransitionDiscard,
	}, f.publisher.transitions())
}

func TestPayRequiresOwner(t *testing.T) {
	f := newFixture(t)
	order := f.cart(t, 1)

	_, err := f.svc.Pay(context.Background(), stranger, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Pay(context.Background(), root, domain.OrderByID(order.ID))
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, domain.StatusCart, f.status(t, order.ID))
}

func TestTransitionOnMissingOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Pay(context.Background(), customer, domain.OrderByID(404))
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Pay(context.Background(), customer, domain.OrderRef{})
	require.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestPayByOrderLine(t *testing.T) {
	f := newFixture(t)
	order := f.cart(t, 2)

	ref := domain.OrderByLine(domain.OrderLine{
		Item:          domain.ItemByName("widget"),
		CustomerID:    customer.UserID,
		DestinationID: 1,
		Statuses:      []domain.Status{domain.StatusCart},
	})
	paid, err := f.svc.Pay(context.Background(), customer, ref)
	require.NoError(t, err)
	assert.Equal(t, order.ID, paid.ID)

	// 同一订单行已不在 cart
	_, err = f.svc.Pay(context.Background(), customer, ref)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
