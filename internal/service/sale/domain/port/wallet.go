package port

import "context"

// TargetKind 决定远端钱包服务按用户还是按余额记录定位
type TargetKind string

const (
	TargetUser    TargetKind = "user_id"
	TargetBalance TargetKind = "balance_id"
)

// WalletTarget 是钱包定位方式的二选一
type WalletTarget struct {
	Kind TargetKind
	ID   uint64
}

func ByUser(userID uint64) WalletTarget { return WalletTarget{Kind: TargetUser, ID: userID} }

func ByBalance(balanceID uint64) WalletTarget { return WalletTarget{Kind: TargetBalance, ID: balanceID} }

// Balance 是钱包服务返回的余额快照
type Balance struct {
	ID     uint64
	UserID uint64
	Num    int64
}

// WalletService 是钱包服务的出站端口。
type WalletService interface {
	// Operate 对余额做增减（amount 为负即扣款）；force 为 true 时覆盖而不是累加。
	Operate(ctx context.Context, target WalletTarget, amount int64, force bool) (*Balance, error)
}
