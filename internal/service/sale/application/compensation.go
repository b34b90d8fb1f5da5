// internal/service/sale/application/compensation.go
package application

import (
	"context"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/pkg/metrics"
	"nexus-sale/internal/service/sale/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// compensation 描述资金操作失败后的补偿路径：先走 revert 边，revert 写不进去再走 fail 边
type compensation struct {
	origin domain.Transition
	revert domain.Transition
	fail   domain.Transition
}

var (
	payCompensation = compensation{
		origin: domain.TransitionPay,
		revert: domain.TransitionPayRevert,
		fail:   domain.TransitionPayFail,
	}
	cancelCompensation = compensation{
		origin: domain.TransitionCancel,
		revert: domain.TransitionCancelRevert,
		fail:   domain.TransitionCancelFail,
	}
)

// compensate 在钱包调用失败后回滚订单状态。
// 回滚成功返回原始的远端错误；回滚失败返回 *domain.ReconciliationError，绝不自动重试。
// 补偿不受调用方取消的影响，但有自己的超时。
func (s *SaleService) compensate(ctx context.Context, order *domain.Order, c compensation, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "app.compensate."+string(c.origin))
	defer span.End()

	logger.Ctx(ctx).Warn().Err(cause).Msgf("WARN: [Order: %d] Wallet call failed after %s. Compensation triggered.", order.ID, c.origin)

	revertErr := s.writeStatus(ctx, order, c.revert)
	if revertErr == nil {
		metrics.Compensations.WithLabelValues(string(c.origin), "reverted").Inc()
		span.AddEvent("Order status reverted.")
		logger.Ctx(ctx).Info().Msgf("INFO: [Order: %d] Status reverted to %s.", order.ID, order.Status)
		return cause
	}

	// 回滚失败：尽量把订单标记到 *_failed，方便运维按状态捞出来
	if failErr := s.writeStatus(ctx, order, c.fail); failErr != nil {
		logger.Ctx(ctx).Error().Bool("critical", true).Err(failErr).
			Msgf("CRITICAL: [Order: %d] Could not mark order as %s either.", order.ID, c.fail.Target())
	}
	metrics.Compensations.WithLabelValues(string(c.origin), "failed").Inc()

	recErr := &domain.ReconciliationError{
		OrderID:         order.ID,
		Transition:      c.origin,
		Cause:           cause,
		CompensationErr: revertErr,
	}
	span.RecordError(recErr, trace.WithAttributes(attribute.Bool("critical.error", true)))
	span.SetStatus(codes.Error, "compensation failed")
	logger.Ctx(ctx).Error().Bool("critical", true).Err(recErr).
		Msgf("CRITICAL: [Order: %d] Local status and wallet balance diverged, manual reconciliation required.", order.ID)
	return recErr
}
