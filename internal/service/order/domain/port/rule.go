package port

import "github.com/shopspring/decimal"

// CouponFacts are the variables a coupon rule may reference.
type CouponFacts struct {
	Subtotal      decimal.Decimal
	ItemCount     int
	CustomerID    uint64
	PaymentMethod string
}

// RuleEngine evaluates the optional boolean rule attached to a coupon.
type RuleEngine interface {
	Evaluate(rule string, facts CouponFacts) (bool, error)
}
