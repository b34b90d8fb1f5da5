// internal/service/wallet/domain/balance.go
package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("balance not found")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Balance 是用户的钱包余额，每个用户只有一条
type Balance struct {
	ID     uint64
	UserID uint64
	Num    int64
}

// Operate 调整余额；force 为 true 时直接覆盖为 num
func (b *Balance) Operate(num int64, force bool) error {
	if force {
		if num < 0 {
			return fmt.Errorf("%w: balance cannot be set to %d", ErrInvalidOperation, num)
		}
		b.Num = num
		return nil
	}
	next := b.Num + num
	if (num > 0 && next < b.Num) || next < 0 {
		return fmt.Errorf("%w: balance of user %d is %d, requested change %d", ErrInsufficientBalance, b.UserID, b.Num, num)
	}
	b.Num = next
	return nil
}

// TargetKind 决定按余额记录还是按用户定位
type TargetKind string

const (
	TargetUser    TargetKind = "user_id"
	TargetBalance TargetKind = "balance_id"
)

type Target struct {
	Kind TargetKind
	ID   uint64
}

func (t Target) Validate() error {
	if t.ID == 0 {
		return fmt.Errorf("%w: target id is required", ErrInvalidOperation)
	}
	switch t.Kind {
	case TargetUser, TargetBalance:
		return nil
	}
	return fmt.Errorf("%w: unknown target type %q", ErrInvalidOperation, t.Kind)
}
