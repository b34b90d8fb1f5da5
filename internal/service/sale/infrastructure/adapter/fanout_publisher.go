package adapter

import (
	"context"
	"errors"

	"nexus-sale/internal/service/sale/domain"
	"nexus-sale/internal/service/sale/domain/port"
)

// FanoutPublisher 把同一事件依次交给多个发布者（Kafka、WebSocket 推送），
// 某一个失败不影响其他。
type FanoutPublisher []port.EventPublisher

func (f FanoutPublisher) PublishStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishStatusChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
