// internal/service/sale/application/lifecycle.go
package application

import (
	"context"
	"fmt"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/pkg/metrics"
	"nexus-sale/internal/service/sale/domain"
	"nexus-sale/internal/service/sale/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// effect 是某条边在状态校验、授权通过之后真正执行的逻辑，调用时已持有订单锁
type effect func(ctx context.Context, order *domain.Order) error

// Pay 扣款：cart -> pay，扣款失败回滚到 cart
func (s *SaleService) Pay(ctx context.Context, caller domain.Caller, ref domain.OrderRef) (*domain.Order, error) {
	return s.transit(ctx, caller, ref, domain.TransitionPay, s.pay)
}

// Cancel 退款：pay -> discard，退款失败回滚到 pay
func (s *SaleService) Cancel(ctx context.Context, caller domain.Caller, ref domain.OrderRef) (*domain.Order, error) {
	return s.transit(ctx, caller, ref, domain.TransitionCancel, s.cancel)
}

func (s *SaleService) Send(ctx context.Context, caller domain.Caller, ref domain.OrderRef) (*domain.Order, error) {
	return s.transit(ctx, caller, ref, domain.TransitionSend, nil)
}

func (s *SaleService) Sign(ctx context.Context, caller domain.Caller, ref domain.OrderRef) (*domain.Order, error) {
	return s.transit(ctx, caller, ref, domain.TransitionSign, nil)
}

func (s *SaleService) Consult(ctx context.Context, caller domain.Caller, ref domain.OrderRef) (*domain.Order, error) {
	return s.transit(ctx, caller, ref, domain.TransitionConsult, nil)
}

// Discard 运营结束售后。资金已在 pay/cancel 时处理过，这里不再动钱。
func (s *SaleService) Discard(ctx context.Context, caller domain.Caller, ref domain.OrderRef) (*domain.Order, error) {
	return s.transit(ctx, caller, ref, domain.TransitionDiscard, nil)
}

// transit 是所有状态边的公共骨架：
// 解析订单 ID -> 加锁 -> 重新加载 -> 校验源状态 -> 授权 -> 执行 -> 释放锁
func (s *SaleService) transit(ctx context.Context, caller domain.Caller, ref domain.OrderRef, t domain.Transition, run effect) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app."+string(t))
	defer span.End()
	span.SetAttributes(attribute.String("transition", string(t)), attribute.Int64("user.id", int64(caller.UserID)))

	order, err := s.lockedTransit(ctx, caller, ref, t, run)
	metrics.OrderTransitions.WithLabelValues(string(t), metrics.Result(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%s failed", t))
		return nil, err
	}
	return order, nil
}

func (s *SaleService) lockedTransit(ctx context.Context, caller domain.Caller, ref domain.OrderRef, t domain.Transition, run effect) (*domain.Order, error) {
	id, err := s.resolveOrderID(ctx, ref)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Allows(order.Status) {
		return nil, fmt.Errorf("%w: order %d can't %s, status is %s", domain.ErrInvalidState, id, t, order.Status)
	}
	if err := s.authorizer.Authorize(ctx, t, caller, order); err != nil {
		return nil, err
	}

	if run == nil {
		err = s.writeStatus(ctx, order, t)
	} else {
		err = run(ctx, order)
	}
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Msgf("INFO: [Order: %d] %s done, status is now %s.", id, t, order.Status)
	return order, nil
}

// writeStatus 以比较并交换的方式沿边 t 写入新状态，成功后更新内存对象并发布事件
func (s *SaleService) writeStatus(ctx context.Context, order *domain.Order, t domain.Transition) error {
	from := order.Status
	next := *order
	if err := next.Apply(t); err != nil {
		return err
	}
	if err := s.store.CompareAndSetStatus(ctx, order.ID, []domain.Status{from}, next.Status); err != nil {
		return err
	}
	order.Status = next.Status
	s.publish(ctx, order, from, t)
	return nil
}

func (s *SaleService) pay(ctx context.Context, order *domain.Order) error {
	// 先落库 pay 并记下扣款金额，再调用钱包。
	// 金额按事务内重新加载的数量和单价计算，不信任加锁前读到的快照。
	from := order.Status
	var amount int64
	err := s.store.Transaction(ctx, func(tx domain.Store) error {
		// 与 AddToCart 相同的加锁顺序：先商品行，再订单行
		item, err := tx.FindItem(ctx, domain.ItemByID(order.ItemID))
		if err != nil {
			return err
		}
		current, err := tx.FindOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status != from {
			return fmt.Errorf("%w: order %d moved to %s concurrently", domain.ErrInvalidState, order.ID, current.Status)
		}
		if amount, err = current.Amount(item.Price); err != nil {
			return err
		}
		if err := current.Apply(domain.TransitionPay); err != nil {
			return err
		}
		current.PaidAmount = amount
		if err := tx.SaveOrder(ctx, current); err != nil {
			return err
		}
		*order = *current
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, order, from, domain.TransitionPay)

	err = s.callRemote(ctx, "wallet", func(ctx context.Context) error {
		_, err := s.wallet.Operate(ctx, port.ByUser(order.CustomerID), -amount, false)
		return err
	})
	if err != nil {
		return s.compensate(ctx, order, payCompensation, err)
	}
	logger.Ctx(ctx).Info().Msgf("✅ [Order: %d] Debited %d from user %d.", order.ID, amount, order.CustomerID)
	return nil
}

func (s *SaleService) cancel(ctx context.Context, order *domain.Order) error {
	amount := order.PaidAmount
	if err := s.writeStatus(ctx, order, domain.TransitionCancel); err != nil {
		return err
	}

	err := s.callRemote(ctx, "wallet", func(ctx context.Context) error {
		_, err := s.wallet.Operate(ctx, port.ByUser(order.CustomerID), amount, false)
		return err
	})
	if err != nil {
		return s.compensate(ctx, order, cancelCompensation, err)
	}
	logger.Ctx(ctx).Info().Msgf("✅ [Order: %d] Refunded %d to user %d.", order.ID, amount, order.CustomerID)
	return nil
}

// Reconcile 把卡在 pay_failed / cancel_failed 的订单移到运维核对后的状态
func (s *SaleService) Reconcile(ctx context.Context, caller domain.Caller, req ReconcileRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", int64(req.OrderID)), attribute.String("to", string(req.To)))

	order, err := s.reconcile(ctx, caller, req)
	metrics.OrderTransitions.WithLabelValues(string(domain.TransitionReconcile), metrics.Result(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return nil, err
	}
	return order, nil
}

func (s *SaleService) reconcile(ctx context.Context, caller domain.Caller, req ReconcileRequest) (*domain.Order, error) {
	if req.OrderID == 0 {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrInvalidOperation)
	}
	release, err := s.locker.Acquire(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.store.FindOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Authorize(ctx, domain.TransitionReconcile, caller, order); err != nil {
		return nil, err
	}
	from := order.Status
	next := *order
	if err := next.Reconcile(req.To); err != nil {
		return nil, err
	}
	if err := s.store.CompareAndSetStatus(ctx, order.ID, []domain.Status{from}, req.To); err != nil {
		return nil, err
	}
	order.Status = req.To
	s.publish(ctx, order, from, domain.TransitionReconcile)

	logger.Ctx(ctx).Warn().Msgf("WARN: [Order: %d] Reconciled by user %d from %s to %s.", order.ID, caller.UserID, from, req.To)
	return order, nil
}

// GetOrder 订单所属用户或运营人员可查
func (s *SaleService) GetOrder(ctx context.Context, caller domain.Caller, id uint64) (*domain.Order, error) {
	order, err := s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.UserID != order.CustomerID && !caller.IsOperator() {
		return nil, fmt.Errorf("%w: user %d may not read order %d", domain.ErrUnauthorized, caller.UserID, id)
	}
	return order, nil
}

func (s *SaleService) ListCustomerOrders(ctx context.Context, caller domain.Caller, customerID uint64) ([]*domain.Order, error) {
	if caller.UserID != customerID && !caller.IsOperator() {
		return nil, fmt.Errorf("%w: user %d may not list orders of %d", domain.ErrUnauthorized, caller.UserID, customerID)
	}
	return s.store.ListOrdersByCustomer(ctx, customerID)
}

// ListOrdersByStatus 供运营使用：售后队列、待对账队列等
func (s *SaleService) ListOrdersByStatus(ctx context.Context, caller domain.Caller, status domain.Status) ([]*domain.Order, error) {
	if !caller.IsOperator() {
		return nil, fmt.Errorf("%w: only operators may list orders by status", domain.ErrUnauthorized)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidOperation, status)
	}
	return s.store.ListOrdersByStatus(ctx, status)
}

// resolveOrderID 把订单选择器解析成订单 ID。按订单行查找时未指定状态集合则接受任意状态。
func (s *SaleService) resolveOrderID(ctx context.Context, ref domain.OrderRef) (uint64, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}
	if ref.Line == nil {
		return ref.ID, nil
	}
	item, err := s.store.FindItem(ctx, ref.Line.Item)
	if err != nil {
		return 0, err
	}
	statuses := ref.Line.Statuses
	if len(statuses) == 0 {
		statuses = domain.AllStatuses()
	}
	order, err := s.store.FindOrderLine(ctx, item.ID, ref.Line.CustomerID, ref.Line.DestinationID, statuses)
	if err != nil {
		return 0, err
	}
	return order.ID, nil
}
