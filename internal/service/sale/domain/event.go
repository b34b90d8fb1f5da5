// internal/service/sale/domain/event.go
package domain

import "time"

// OrderStatusChanged 是订单状态每次变化后发布的领域事件（包括补偿）
type OrderStatusChanged struct {
	EventID    string     `json:"eventId"`
	TraceID    string     `json:"traceId,omitempty"`
	OrderID    uint64     `json:"orderId"`
	CustomerID uint64     `json:"customerId"`
	ItemID     uint64     `json:"itemId"`
	Quantity   int64      `json:"quantity"`
	From       Status     `json:"from"`
	To         Status     `json:"to"`
	Transition Transition `json:"transition"`
	OccurredAt time.Time  `json:"occurredAt"`
}
