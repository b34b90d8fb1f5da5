// internal/service/wallet/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"math"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/pkg/metrics"
	"nexus-sale/internal/service/wallet/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WalletService 负责余额的增减。所有写操作都在一个带行锁的事务中完成。
type WalletService struct {
	repo   domain.Repository
	tracer trace.Tracer
}

func NewWalletService(repo domain.Repository) *WalletService {
	return &WalletService{repo: repo, tracer: otel.Tracer("wallet-service")}
}

// Operate 是内部接口：按用户或余额记录调整余额。
// 按用户定位且用户还没有余额时先创建一条 0 余额记录。
func (s *WalletService) Operate(ctx context.Context, target domain.Target, num int64, force bool) (*domain.Balance, error) {
	return s.operate(ctx, "operate", target, num, force)
}

// Recharge 用户充值
func (s *WalletService) Recharge(ctx context.Context, userID uint64, num int64) (*domain.Balance, error) {
	if num <= 0 {
		return nil, fmt.Errorf("%w: recharge amount must be positive", domain.ErrInvalidOperation)
	}
	return s.operate(ctx, "recharge", domain.Target{Kind: domain.TargetUser, ID: userID}, num, false)
}

// CashOut 用户提现
func (s *WalletService) CashOut(ctx context.Context, userID uint64, num int64) (*domain.Balance, error) {
	if num <= 0 || num == math.MinInt64 {
		return nil, fmt.Errorf("%w: cash out amount must be positive", domain.ErrInvalidOperation)
	}
	return s.operate(ctx, "cash_out", domain.Target{Kind: domain.TargetUser, ID: userID}, -num, false)
}

// Get 查询用户余额，没有记录时视为 0
func (s *WalletService) Get(ctx context.Context, userID uint64) (*domain.Balance, error) {
	b, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Balance{UserID: userID}, nil
	}
	return b, err
}

func (s *WalletService) operate(ctx context.Context, kind string, target domain.Target, num int64, force bool) (_ *domain.Balance, err error) {
	ctx, span := s.tracer.Start(ctx, "app.Wallet."+kind)
	defer span.End()
	span.SetAttributes(
		attribute.String("wallet.target_type", string(target.Kind)),
		attribute.Int64("wallet.target_id", int64(target.ID)),
		attribute.Int64("wallet.num", num),
	)
	defer func() {
		metrics.WalletOperations.WithLabelValues(kind, metrics.Result(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := target.Validate(); err != nil {
		return nil, err
	}

	var out *domain.Balance
	err = s.repo.Transaction(ctx, func(tx domain.Repository) error {
		b, err := load(ctx, tx, target)
		if err != nil {
			return err
		}
		if err := b.Operate(num, force); err != nil {
			return err
		}
		if err := tx.Save(ctx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msgf("WARN: [Wallet: %s#%d] %s %d rejected.", target.Kind, target.ID, kind, num)
		return nil, err
	}
	logger.Ctx(ctx).Info().Msgf("✅ [Wallet: %d] %s %d, balance of user %d is %d now.", out.ID, kind, num, out.UserID, out.Num)
	return out, nil
}

func load(ctx context.Context, tx domain.Repository, target domain.Target) (*domain.Balance, error) {
	if target.Kind == domain.TargetBalance {
		return tx.FindByID(ctx, target.ID)
	}
	b, err := tx.FindByUser(ctx, target.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		return b, err
	}
	b = &domain.Balance{UserID: target.ID}
	if err := tx.Insert(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}
