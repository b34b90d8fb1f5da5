// internal/service/sale/application/items.go
package application

import (
	"context"
	"errors"
	"fmt"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/service/sale/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CreateItem 创建商品。事务内在插入前再查一次名称，堵住先查后写的竞态。
func (s *SaleService) CreateItem(ctx context.Context, req CreateItemRequest) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateItem")
	defer span.End()
	span.SetAttributes(attribute.String("item.name", req.Name))

	item, err := domain.NewItem(req.Name, req.Kind, req.Price, req.Remain)
	if err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx domain.Store) error {
		_, err := tx.FindItem(ctx, domain.ItemByName(item.Name))
		switch {
		case err == nil:
			return fmt.Errorf("%w: item %q", domain.ErrAlreadyExists, item.Name)
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create item failed")
		return nil, err
	}

	logger.Ctx(ctx).Info().Msgf("INFO: [Item: %d] Created %q, price %d, stock %d.", item.ID, item.Name, item.Price, item.Remain)
	return item, nil
}

// AdjustItemStock 重新加载商品后调整库存
func (s *SaleService) AdjustItemStock(ctx context.Context, req AdjustStockRequest) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "app.AdjustItemStock")
	defer span.End()

	item, err := s.mutateItem(ctx, req.Item, func(item *domain.Item) error {
		return item.AdjustStock(req.Delta, req.Force)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Msgf("INFO: [Item: %d] Stock adjusted by %d (force=%t), remain %d.", item.ID, req.Delta, req.Force, item.Remain)
	return item, nil
}

func (s *SaleService) SetItemPrice(ctx context.Context, req SetPriceRequest) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "app.SetItemPrice")
	defer span.End()

	item, err := s.mutateItem(ctx, req.Item, func(item *domain.Item) error {
		return item.SetPrice(req.Price)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Msgf("INFO: [Item: %d] Price set to %d.", item.ID, item.Price)
	return item, nil
}

func (s *SaleService) GetItem(ctx context.Context, ref domain.ItemRef) (*domain.Item, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.store.FindItem(ctx, ref)
}

func (s *SaleService) ListItems(ctx context.Context, inStockOnly bool) ([]*domain.Item, error) {
	return s.store.ListItems(ctx, inStockOnly)
}

func (s *SaleService) mutateItem(ctx context.Context, ref domain.ItemRef, mutate func(*domain.Item) error) (*domain.Item, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	var out *domain.Item
	err := s.store.Transaction(ctx, func(tx domain.Store) error {
		item, err := tx.FindItem(ctx, ref)
		if err != nil {
			return err
		}
		if err := mutate(item); err != nil {
			return err
		}
		if err := tx.SaveItem(ctx, item); err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
