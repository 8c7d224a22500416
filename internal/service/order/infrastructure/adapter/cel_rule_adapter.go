package adapter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"ordersaga/internal/service/order/domain/port"
)

// CELRuleEngine evaluates coupon rules written in CEL, e.g.
//
//	subtotal >= 30000.0 && payment_method == "card"
//
// Variables: subtotal (double), item_count (int), customer_id (int),
// payment_method (string). Compiled programs are cached per rule text.
type CELRuleEngine struct {
	env      *cel.Env
	programs sync.Map // rule -> cel.Program
}

func NewCELRuleEngine() (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("subtotal", cel.DoubleType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("customer_id", cel.IntType),
		cel.Variable("payment_method", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("build cel env: %w", err)
	}
	return &CELRuleEngine{env: env}, nil
}

func (e *CELRuleEngine) Evaluate(rule string, facts port.CouponFacts) (bool, error) {
	prg, err := e.program(rule)
	if err != nil {
		return false, err
	}
	subtotal, _ := facts.Subtotal.Float64()
	out, _, err := prg.Eval(map[string]any{
		"subtotal":       subtotal,
		"item_count":     int64(facts.ItemCount),
		"customer_id":    int64(facts.CustomerID),
		"payment_method": facts.PaymentMethod,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate coupon rule %q: %w", rule, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("coupon rule %q did not yield a bool", rule)
	}
	return ok, nil
}

func (e *CELRuleEngine) program(rule string) (cel.Program, error) {
	if p, ok := e.programs.Load(rule); ok {
		return p.(cel.Program), nil
	}
	ast, iss := e.env.Compile(rule)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile coupon rule %q: %w", rule, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("coupon rule %q must be boolean, got %s", rule, ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("plan coupon rule %q: %w", rule, err)
	}
	e.programs.Store(rule, prg)
	return prg, nil
}
