package port

import (
	"context"
	"nexus-sale/internal/service/sale/domain"
)

// Authorizer 判断调用方能否对订单执行某个操作，拒绝时返回 domain.ErrUnauthorized。
type Authorizer interface {
	Authorize(ctx context.Context, op domain.Transition, caller domain.Caller, order *domain.Order) error
}
