// internal/service/sale/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 销售服务的错误分类。所有对外返回的错误都应当能用 errors.Is 匹配到其中之一。
var (
	ErrAlreadyExists          = errors.New("already exists")
	ErrNotFound               = errors.New("not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidState           = errors.New("invalid state transition")
	ErrInvalidOperation       = errors.New("invalid operation")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrRemoteService          = errors.New("remote service failure")
	ErrReconciliationRequired = errors.New("reconciliation required")
)

// ReconciliationError 表示补偿写入本身失败，本地订单状态与远端余额已经不一致，
// 必须由运维人工核对，绝不能自动重试。
type ReconciliationError struct {
	OrderID         uint64
	Transition      Transition
	Cause           error // 触发补偿的远端调用错误
	CompensationErr error // 补偿写入失败的原因
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s: order %d after %s: remote: %v; compensation: %v",
		ErrReconciliationRequired, e.OrderID, e.Transition, e.Cause, e.CompensationErr)
}

// Unwrap 让 errors.Is 同时能匹配到 ErrReconciliationRequired、原始远端错误和补偿错误。
func (e *ReconciliationError) Unwrap() []error {
	return []error{ErrReconciliationRequired, e.Cause, e.CompensationErr}
}
