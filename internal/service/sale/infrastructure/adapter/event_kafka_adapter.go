package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"nexus-sale/internal/pkg/mq"
	"nexus-sale/internal/service/sale/domain"
)

// EventKafkaAdapter 实现了 port.EventPublisher 接口，把订单事件写入 Kafka。
// 以订单 ID 作为 key，同一订单的事件保持顺序。
type EventKafkaAdapter struct {
	writer mq.MessageWriter
}

func NewEventKafkaAdapter(writer mq.MessageWriter) *EventKafkaAdapter {
	return &EventKafkaAdapter{writer: writer}
}

func (a *EventKafkaAdapter) PublishStatusChanged(ctx context.Context, event *domain.OrderStatusChanged) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}
	// 调用通用的 mq.ProduceMessage，它会自动处理追踪上下文注入
	return mq.ProduceMessage(ctx, a.writer, []byte(strconv.FormatUint(event.OrderID, 10)), eventBytes)
}
