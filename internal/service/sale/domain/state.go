// internal/service/sale/domain/state.go
package domain

import "slices"

// Status 定义了订单（record）的生命周期状态
type Status string

const (
	StatusCart    Status = "cart"    // 购物车中，数量可变
	StatusPay     Status = "pay"     // 已支付
	StatusSending Status = "sending" // 配送中
	StatusSign    Status = "sign"    // 已签收
	StatusConsult Status = "consult" // 用户发起售后/争议
	StatusDiscard Status = "discard" // 终态，保留用于审计

	StatusPayFailed    Status = "pay_failed"    // 扣款失败且回滚失败，等待人工对账
	StatusCancelFailed Status = "cancel_failed" // 退款失败且回滚失败，等待人工对账
)

// Transition 是状态图上一条具名的边
type Transition string

const (
	TransitionPay     Transition = "pay"
	TransitionCancel  Transition = "cancel"
	TransitionSend    Transition = "send"
	TransitionSign    Transition = "sign"
	TransitionConsult Transition = "consult"
	TransitionDiscard Transition = "discard"

	// 补偿边只能由系统在远端调用失败后触发
	TransitionPayRevert    Transition = "pay.revert"
	TransitionPayFail      Transition = "pay.fail"
	TransitionCancelRevert Transition = "cancel.revert"
	TransitionCancelFail   Transition = "cancel.fail"

	// 以下不是状态边，只用于授权策略
	TransitionReconcile         Transition = "reconcile"
	TransitionChangeDestination Transition = "change_destination"
)

type edge struct {
	from []Status
	to   Status
}

var transitions = map[Transition]edge{
	TransitionPay:     {from: []Status{StatusCart}, to: StatusPay},
	TransitionCancel:  {from: []Status{StatusPay}, to: StatusDiscard},
	TransitionSend:    {from: []Status{StatusPay}, to: StatusSending},
	TransitionSign:    {from: []Status{StatusSending}, to: StatusSign},
	TransitionConsult: {from: []Status{StatusSign, StatusSending}, to: StatusConsult},
	TransitionDiscard: {from: []Status{StatusConsult}, to: StatusDiscard},

	TransitionPayRevert:    {from: []Status{StatusPay}, to: StatusCart},
	TransitionPayFail:      {from: []Status{StatusPay}, to: StatusPayFailed},
	TransitionCancelRevert: {from: []Status{StatusDiscard}, to: StatusPay},
	TransitionCancelFail:   {from: []Status{StatusDiscard}, to: StatusCancelFailed},
}

// 人工对账允许的落点
var reconcileTargets = map[Status][]Status{
	StatusPayFailed:    {StatusCart, StatusPay},
	StatusCancelFailed: {StatusPay, StatusDiscard},
}

// 配送中的订单收货地址不可修改
var destinationFrozen = []Status{StatusSign, StatusSending}

// Sources 返回该边要求的源状态集合
func (t Transition) Sources() []Status {
	return slices.Clone(transitions[t].from)
}

// Target 返回该边的目标状态
func (t Transition) Target() Status {
	return transitions[t].to
}

// IsStateEdge 判断是否是状态图上的边
func (t Transition) IsStateEdge() bool {
	_, ok := transitions[t]
	return ok
}

// Allows 判断当前状态能否走这条边
func (t Transition) Allows(s Status) bool {
	e, ok := transitions[t]
	return ok && slices.Contains(e.from, s)
}

// ReconcileTargets 返回处于对账状态的订单可以被人工恢复到的状态
func ReconcileTargets(s Status) []Status {
	return slices.Clone(reconcileTargets[s])
}

// NeedsReconciliation 判断订单是否卡在补偿失败状态
func (s Status) NeedsReconciliation() bool {
	_, ok := reconcileTargets[s]
	return ok
}

// Valid 检查状态值是否属于枚举
func (s Status) Valid() bool {
	switch s {
	case StatusCart, StatusPay, StatusSending, StatusSign, StatusConsult, StatusDiscard,
		StatusPayFailed, StatusCancelFailed:
		return true
	}
	return false
}

// AllStatuses 返回全部状态，用于“任意状态”查询
func AllStatuses() []Status {
	return []Status{
		StatusCart, StatusPay, StatusSending, StatusSign, StatusConsult, StatusDiscard,
		StatusPayFailed, StatusCancelFailed,
	}
}
