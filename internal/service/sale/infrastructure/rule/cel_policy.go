// internal/service/sale/infrastructure/rule/cel_policy.go
package rule

import (
	"context"
	"fmt"
	"sort"

	"nexus-sale/internal/service/sale/domain"

	"github.com/google/cel-go/cel"
)

const (
	exprOwner           = `caller.id != 0 && caller.id == order.customer_id`
	exprOperator        = `"root" in caller.roles || "worker" in caller.roles`
	exprOwnerOrOperator = exprOwner + ` || ` + exprOperator
	exprRoot            = `"root" in caller.roles`
)

// DefaultExpressions 与 domain.DefaultPolicy 的规则一一对应
var DefaultExpressions = map[domain.Transition]string{
	domain.TransitionPay:               exprOwner,
	domain.TransitionCancel:            exprOwner,
	domain.TransitionConsult:           exprOwner,
	domain.TransitionChangeDestination: exprOwner,
	domain.TransitionSend:              exprOperator,
	domain.TransitionDiscard:           exprOperator,
	domain.TransitionSign:              exprOwnerOrOperator,
	domain.TransitionReconcile:         exprRoot,
}

// CELPolicy 是 port.Authorizer 的 CEL 实现：每个操作对应一条布尔表达式。
// 表达式里可以使用 caller.{id, roles} 和 order.{id, item_id, customer_id, destination_id, quantity, status}。
type CELPolicy struct {
	programs map[domain.Transition]cel.Program
}

// NewCELPolicy 在默认表达式之上应用 overrides，并在启动时编译全部表达式
func NewCELPolicy(overrides map[string]string) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("caller", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("order", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	exprs := make(map[domain.Transition]string, len(DefaultExpressions)+len(overrides))
	for t, e := range DefaultExpressions {
		exprs[t] = e
	}
	for op, e := range overrides {
		exprs[domain.Transition(op)] = e
	}

	// 按名字排序编译，错误信息稳定
	ops := make([]string, 0, len(exprs))
	for t := range exprs {
		ops = append(ops, string(t))
	}
	sort.Strings(ops)

	programs := make(map[domain.Transition]cel.Program, len(exprs))
	for _, op := range ops {
		t := domain.Transition(op)
		ast, iss := env.Compile(exprs[t])
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("compile policy for %s: %w", op, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("policy for %s must be a boolean expression, got %s", op, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("build policy program for %s: %w", op, err)
		}
		programs[t] = prg
	}
	return &CELPolicy{programs: programs}, nil
}

// Authorize 实现 port.Authorizer。未配置表达式的操作一律拒绝。
func (p *CELPolicy) Authorize(ctx context.Context, op domain.Transition, caller domain.Caller, order *domain.Order) error {
	prg, ok := p.programs[op]
	if !ok {
		return fmt.Errorf("%w: no policy for %s", domain.ErrUnauthorized, op)
	}
	roles := caller.Roles
	if roles == nil {
		roles = []string{}
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{
		"caller": map[string]any{
			"id":    int64(caller.UserID),
			"roles": roles,
		},
		"order": map[string]any{
			"id":             int64(order.ID),
			"item_id":        int64(order.ItemID),
			"customer_id":    int64(order.CustomerID),
			"destination_id": int64(order.DestinationID),
			"quantity":       order.Quantity,
			"status":         string(order.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: evaluate policy for %s: %v", domain.ErrUnauthorized, op, err)
	}
	if allowed, ok := out.Value().(bool); !ok || !allowed {
		return fmt.Errorf("%w: user %d may not %s order %d", domain.ErrUnauthorized, caller.UserID, op, order.ID)
	}
	return nil
}
