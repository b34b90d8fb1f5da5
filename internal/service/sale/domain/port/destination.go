package port

import "context"

// Destination 是收货地址在地址服务中的表示
type Destination struct {
	ID      uint64
	OwnerID uint64
	Address string
}

// DestinationService 是地址服务的出站端口，用于校验地址归属。
type DestinationService interface {
	Resolve(ctx context.Context, destinationID uint64) (*Destination, error)
}
