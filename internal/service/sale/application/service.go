// internal/service/sale/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/pkg/metrics"
	"nexus-sale/internal/service/sale/domain"
	"nexus-sale/internal/service/sale/domain/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultRemoteTimeout       = 5 * time.Second
	defaultCompensationTimeout = 10 * time.Second
	defaultPublishTimeout      = 2 * time.Second
)

// Deps 汇总构造 SaleService 所需的协作者
type Deps struct {
	Store        domain.Store
	Wallet       port.WalletService
	Destinations port.DestinationService

	// 以下可选
	Locker     port.OrderLocker
	Authorizer port.Authorizer
	Publisher  port.EventPublisher
	Tracer     trace.Tracer
	Clock      func() time.Time

	RemoteTimeout       time.Duration
	CompensationTimeout time.Duration
	PublishTimeout      time.Duration
}

// SaleService 负责订单生命周期的编排：购物车、支付、发货、签收、售后、取消，以及资金补偿。
type SaleService struct {
	store        domain.Store
	wallet       port.WalletService
	destinations port.DestinationService
	locker       port.OrderLocker
	authorizer   port.Authorizer
	publisher    port.EventPublisher
	tracer       trace.Tracer
	clock        func() time.Time

	remoteTimeout       time.Duration
	compensationTimeout time.Duration
	publishTimeout      time.Duration
}

func NewSaleService(deps Deps) (*SaleService, error) {
	if deps.Store == nil {
		return nil, errors.New("sale service: store is required")
	}
	if deps.Wallet == nil {
		return nil, errors.New("sale service: wallet client is required")
	}
	if deps.Destinations == nil {
		return nil, errors.New("sale service: destination client is required")
	}

	s := &SaleService{
		store:               deps.Store,
		wallet:              deps.Wallet,
		destinations:        deps.Destinations,
		locker:              deps.Locker,
		authorizer:          deps.Authorizer,
		publisher:           deps.Publisher,
		tracer:              deps.Tracer,
		clock:               deps.Clock,
		remoteTimeout:       deps.RemoteTimeout,
		compensationTimeout: deps.CompensationTimeout,
		publishTimeout:      deps.PublishTimeout,
	}
	if s.locker == nil {
		s.locker = NewLockTable()
	}
	if s.authorizer == nil {
		s.authorizer = domain.DefaultPolicy{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("sale-service")
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.remoteTimeout <= 0 {
		s.remoteTimeout = defaultRemoteTimeout
	}
	if s.compensationTimeout <= 0 {
		s.compensationTimeout = defaultCompensationTimeout
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = defaultPublishTimeout
	}
	return s, nil
}

// callRemote 给远端调用套上超时，并统一归类为 ErrRemoteService。
// 已经带有领域错误语义的（比如地址不存在）原样返回。
func (s *SaleService) callRemote(ctx context.Context, service string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.RemoteCallDuration.WithLabelValues(service, metrics.Result(err)).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrRemoteService), errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidOperation):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s timed out after %s: %w", domain.ErrRemoteService, service, s.remoteTimeout, err)
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrRemoteService, service, err)
	}
}

// publish 在状态变化后发布事件，带独立超时，失败只告警
func (s *SaleService) publish(ctx context.Context, order *domain.Order, from domain.Status, t domain.Transition) {
	if s.publisher == nil {
		return
	}
	event := &domain.OrderStatusChanged{
		EventID:    uuid.New().String(),
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		ItemID:     order.ItemID,
		Quantity:   order.Quantity,
		From:       from,
		To:         order.Status,
		Transition: t,
		OccurredAt: s.clock().UTC(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		event.TraceID = sc.TraceID().String()
	}
	// 发布时仍持有订单锁，消息队列不可用时不能拖住状态流转
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.PublishStatusChanged(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msgf("WARN: [Order: %d] Failed to publish %s event.", order.ID, t)
	}
}
