package domain

import (
	"context"
	"fmt"
	"slices"
)

const (
	RoleRoot   = "root"
	RoleWorker = "worker"
	RoleNormal = "normal"
)

// Caller 是已经通过网关认证的请求方
type Caller struct {
	UserID uint64
	Roles  []string
}

func (c Caller) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// IsOperator 运营人员：root 或 worker
func (c Caller) IsOperator() bool {
	return c.HasRole(RoleRoot) || c.HasRole(RoleWorker)
}

type rule func(Caller, *Order) bool

func ownerOnly(c Caller, o *Order) bool { return c.UserID != 0 && c.UserID == o.CustomerID }

func operatorOnly(c Caller, _ *Order) bool { return c.IsOperator() }

func ownerOrOperator(c Caller, o *Order) bool { return ownerOnly(c, o) || c.IsOperator() }

func rootOnly(c Caller, _ *Order) bool { return c.HasRole(RoleRoot) }

// DefaultPolicy 是内置的授权规则，与 configs 中 CEL 表达式的默认值保持一致
type DefaultPolicy struct{}

var defaultRules = map[Transition]rule{
	TransitionPay:               ownerOnly,
	TransitionCancel:            ownerOnly,
	TransitionConsult:           ownerOnly,
	TransitionChangeDestination: ownerOnly,
	TransitionSend:              operatorOnly,
	TransitionDiscard:           operatorOnly,
	TransitionSign:              ownerOrOperator,
	TransitionReconcile:         rootOnly,
}

// Authorize 未配置规则的操作一律拒绝
func (DefaultPolicy) Authorize(_ context.Context, t Transition, caller Caller, order *Order) error {
	r, ok := defaultRules[t]
	if !ok || !r(caller, order) {
		return fmt.Errorf("%w: user %d may not %s order %d", ErrUnauthorized, caller.UserID, t, order.ID)
	}
	return nil
}
