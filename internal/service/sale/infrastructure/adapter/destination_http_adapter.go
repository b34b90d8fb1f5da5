package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"nexus-sale/internal/pkg/httpclient"
	"nexus-sale/internal/service/sale/domain"
	"nexus-sale/internal/service/sale/domain/port"
)

const destinationGetPath = "/homes/get"

// DestinationHTTPAdapter 实现了 port.DestinationService 接口。
type DestinationHTTPAdapter struct {
	client   *httpclient.Client
	resolver httpclient.Resolver
}

func NewDestinationHTTPAdapter(client *httpclient.Client, resolver httpclient.Resolver) *DestinationHTTPAdapter {
	return &DestinationHTTPAdapter{client: client, resolver: resolver}
}

type homeResponse struct {
	HomeID      uint64 `json:"home_id"`
	UserID      uint64 `json:"user_id"`
	HomeAddress string `json:"home_address"`
}

// Resolve 查询地址及其所属用户。地址不存在返回 domain.ErrNotFound。
func (a *DestinationHTTPAdapter) Resolve(ctx context.Context, destinationID uint64) (*port.Destination, error) {
	base, err := a.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve destination service: %w", domain.ErrRemoteService, err)
	}

	var resp homeResponse
	params := url.Values{"home_id": {strconv.FormatUint(destinationID, 10)}}
	if err := a.client.GetJSON(ctx, base+destinationGetPath, params, &resp); err != nil {
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: destination %d", domain.ErrNotFound, destinationID)
		}
		return nil, fmt.Errorf("%w: destination %d: %w", domain.ErrRemoteService, destinationID, err)
	}
	return &port.Destination{ID: resp.HomeID, OwnerID: resp.UserID, Address: resp.HomeAddress}, nil
}
