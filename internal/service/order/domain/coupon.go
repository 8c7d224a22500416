package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponFixed      CouponType = "fixed"
	CouponPercentage CouponType = "percentage"
)

type Coupon struct {
	ID             uint64
	Code           string
	Name           string
	Type           CouponType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxUses        *int
	UsedCount      int
	StartsAt       *time.Time
	ExpiresAt      *time.Time
	IsActive       bool
	// Rule is an optional boolean expression over the order, evaluated by a
	// port.RuleEngine after the built-in checks pass.
	Rule string
}

// Validate checks the coupon against an order subtotal at now. The first
// failing condition is returned.
func (c *Coupon) Validate(subtotal decimal.Decimal, now time.Time) error {
	if !c.IsActive {
		return ErrCouponInactive
	}
	if c.StartsAt != nil && c.StartsAt.After(now) {
		return ErrCouponNotStarted
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return ErrCouponExpired
	}
	if c.Exhausted() {
		return ErrCouponExhausted
	}
	if c.MinOrderAmount.GreaterThan(subtotal) {
		return ErrCouponMinimumNotMet
	}
	return nil
}

// Exhausted reports whether every use is taken. A nil or zero MaxUses
// means unlimited.
func (c *Coupon) Exhausted() bool {
	return c.MaxUses != nil && *c.MaxUses > 0 && c.UsedCount >= *c.MaxUses
}

// Discount is the amount this coupon takes off subtotal, never more than
// subtotal itself.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Type {
	case CouponPercentage:
		d = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100)).Round(2)
	default:
		d = c.Value
	}
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	return d
}
