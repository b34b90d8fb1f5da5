// internal/service/sale/application/cart.go
package application

import (
	"context"
	"errors"
	"fmt"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/service/sale/domain"
	"nexus-sale/internal/service/sale/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AddToCart 把商品放入（或退出）调用方的购物车。
// 库存扣减和购物车数量在同一个事务里变更，要么都生效要么都不生效。
func (s *SaleService) AddToCart(ctx context.Context, caller domain.Caller, req AddToCartRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.AddToCart")
	defer span.End()
	span.SetAttributes(
		attribute.String("item", req.Item.String()),
		attribute.Int64("user.id", int64(caller.UserID)),
		attribute.Int64("delta", req.Delta),
	)

	if caller.UserID == 0 {
		return nil, fmt.Errorf("%w: anonymous caller", domain.ErrUnauthorized)
	}
	if req.Delta == 0 {
		return nil, fmt.Errorf("%w: cart delta must not be zero", domain.ErrInvalidOperation)
	}
	if req.DestinationID == 0 {
		return nil, fmt.Errorf("%w: destination is required", domain.ErrInvalidOperation)
	}
	if err := req.Item.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkDestination(ctx, req.DestinationID, caller.UserID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 已有购物车行时先拿到它的订单锁，避免与同一订单上的支付交错
	var (
		lockedID uint64
		release  = func() {}
	)
	defer func() { release() }()
	if line, err := s.findCartLine(ctx, req.Item, caller.UserID, req.DestinationID); err == nil {
		if release, err = s.acquireOrRelease(ctx, line.ID); err != nil {
			return nil, err
		}
		lockedID = line.ID
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var (
		out *domain.Order
		err error
	)
	for attempt := 0; ; attempt++ {
		out, err = s.addToCartTx(ctx, caller, req, lockedID)
		var unlocked *unlockedLineError
		if !errors.As(err, &unlocked) {
			break
		}
		// 事务里发现了一条没有加锁的购物车行（并发创建的），回滚后在它的锁下重试
		if attempt >= maxCartAttempts {
			err = fmt.Errorf("%w: cart line %d keeps changing", domain.ErrInvalidState, unlocked.id)
			break
		}
		release()
		if release, err = s.acquireOrRelease(ctx, unlocked.id); err != nil {
			return nil, err
		}
		lockedID = unlocked.id
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "add to cart failed")
		logger.Ctx(ctx).Warn().Err(err).Msgf("WARN: [User: %d] Add %d x %s to cart failed.", caller.UserID, req.Delta, req.Item)
		return nil, err
	}

	logger.Ctx(ctx).Info().Msgf("INFO: [Order: %d] Cart line now holds %d of item %d.", out.ID, out.Quantity, out.ItemID)
	return out, nil
}

const maxCartAttempts = 3

// unlockedLineError 表示事务内找到的购物车行不是调用方持有锁的那一条
type unlockedLineError struct{ id uint64 }

func (e *unlockedLineError) Error() string {
	return fmt.Sprintf("cart line %d is not locked by this request", e.id)
}

// acquireOrRelease 获取订单锁，失败时返回一个空的 release，方便调用方统一 defer
func (s *SaleService) acquireOrRelease(ctx context.Context, orderID uint64) (func(), error) {
	release, err := s.locker.Acquire(ctx, orderID)
	if err != nil {
		return func() {}, err
	}
	return release, nil
}

// addToCartTx 在一个事务内扣减库存并合并购物车行。
// lockedID 是调用方已持有锁的订单，命中其它已有行时返回 *unlockedLineError 并回滚。
func (s *SaleService) addToCartTx(ctx context.Context, caller domain.Caller, req AddToCartRequest, lockedID uint64) (*domain.Order, error) {
	var out *domain.Order
	err := s.store.Transaction(ctx, func(tx domain.Store) error {
		item, err := tx.FindItem(ctx, req.Item)
		if err != nil {
			return err
		}
		if err := item.AdjustStock(-req.Delta, false); err != nil {
			return err
		}
		if err := tx.SaveItem(ctx, item); err != nil {
			return err
		}

		line, err := tx.FindOrderLine(ctx, item.ID, caller.UserID, req.DestinationID, []domain.Status{domain.StatusCart})
		switch {
		case errors.Is(err, domain.ErrNotFound):
			order, err := domain.NewCartOrder(item.ID, caller.UserID, req.DestinationID, req.Delta)
			if err != nil {
				return err
			}
			if err := tx.InsertOrder(ctx, order); err != nil {
				return err
			}
			out = order
			return nil
		case err != nil:
			return err
		case line.ID != lockedID:
			return &unlockedLineError{id: line.ID}
		}

		if err := line.AddQuantity(req.Delta); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, line); err != nil {
			return err
		}
		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ChangeDestination 修改收货地址。新地址必须属于订单所属用户，配送中的订单不可修改。
func (s *SaleService) ChangeDestination(ctx context.Context, caller domain.Caller, req ChangeDestinationRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "app.ChangeDestination")
	defer span.End()

	if req.DestinationID == 0 {
		return nil, fmt.Errorf("%w: destination is required", domain.ErrInvalidOperation)
	}
	id, err := s.resolveOrderID(ctx, req.Order)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", int64(id)))

	release, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.store.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Authorize(ctx, domain.TransitionChangeDestination, caller, order); err != nil {
		return nil, err
	}
	next := *order
	if err := next.ChangeDestination(req.DestinationID); err != nil {
		return nil, err
	}
	if err := s.checkDestination(ctx, req.DestinationID, order.CustomerID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var out *domain.Order
	err = s.store.Transaction(ctx, func(tx domain.Store) error {
		current, err := tx.FindOrder(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == domain.StatusCart {
			// 同一 (商品, 用户, 地址) 只能有一条购物车行
			existing, err := tx.FindOrderLine(ctx, current.ItemID, current.CustomerID, req.DestinationID, []domain.Status{domain.StatusCart})
			switch {
			case err == nil && existing.ID != current.ID:
				return fmt.Errorf("%w: cart line for destination %d", domain.ErrAlreadyExists, req.DestinationID)
			case err != nil && !errors.Is(err, domain.ErrNotFound):
				return err
			}
		}
		if err := current.ChangeDestination(req.DestinationID); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, current); err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().Msgf("INFO: [Order: %d] Destination changed to %d.", id, req.DestinationID)
	return out, nil
}

// checkDestination 通过地址服务确认地址归属
func (s *SaleService) checkDestination(ctx context.Context, destinationID, ownerID uint64) error {
	var dest *port.Destination
	err := s.callRemote(ctx, "destination", func(ctx context.Context) error {
		var err error
		dest, err = s.destinations.Resolve(ctx, destinationID)
		return err
	})
	if err != nil {
		return err
	}
	if dest.OwnerID != ownerID {
		return fmt.Errorf("%w: destination %d does not belong to user %d", domain.ErrUnauthorized, destinationID, ownerID)
	}
	return nil
}

func (s *SaleService) findCartLine(ctx context.Context, ref domain.ItemRef, customerID, destinationID uint64) (*domain.Order, error) {
	item, err := s.store.FindItem(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.store.FindOrderLine(ctx, item.ID, customerID, destinationID, []domain.Status{domain.StatusCart})
}
