package adapter

import (
	"context"
	"fmt"

	"nexus-sale/internal/pkg/httpclient"
	"nexus-sale/internal/service/sale/domain"
	"nexus-sale/internal/service/sale/domain/port"
)

const walletOperatePath = "/wallet/operate"

// WalletHTTPAdapter 实现了 port.WalletService 接口。
type WalletHTTPAdapter struct {
	client   *httpclient.Client
	resolver httpclient.Resolver
}

// NewWalletHTTPAdapter 创建一个新的钱包服务适配器。
func NewWalletHTTPAdapter(client *httpclient.Client, resolver httpclient.Resolver) *WalletHTTPAdapter {
	return &WalletHTTPAdapter{client: client, resolver: resolver}
}

type operateRequest struct {
	Type  port.TargetKind `json:"type"`
	ID    uint64          `json:"id"`
	Num   int64           `json:"num"`
	Force bool            `json:"force"`
}

type balanceResponse struct {
	BalanceID uint64 `json:"balance_id"`
	UserID    uint64 `json:"user_id"`
	Num       int64  `json:"num"`
}

// Operate 调用钱包服务增减余额。任何失败都归类为 domain.ErrRemoteService。
func (a *WalletHTTPAdapter) Operate(ctx context.Context, target port.WalletTarget, amount int64, force bool) (*port.Balance, error) {
	base, err := a.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve wallet service: %w", domain.ErrRemoteService, err)
	}

	var resp balanceResponse
	req := operateRequest{Type: target.Kind, ID: target.ID, Num: amount, Force: force}
	if err := a.client.PostJSON(ctx, base+walletOperatePath, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: wallet operate %s#%d by %d: %w", domain.ErrRemoteService, target.Kind, target.ID, amount, err)
	}
	return &port.Balance{ID: resp.BalanceID, UserID: resp.UserID, Num: resp.Num}, nil
}
