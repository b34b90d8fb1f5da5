package port

import (
	"context"
	"nexus-sale/internal/service/sale/domain"
)

// EventPublisher 是订单事件的出站端口。
// 发布失败不影响主流程，调用方只记录告警。
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error
}
