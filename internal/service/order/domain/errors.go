package domain

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrCouponExhausted      = errors.New("coupon usage limit reached")
	ErrCouponInactive       = errors.New("coupon is not active")
	ErrCouponNotStarted     = errors.New("coupon is not yet valid")
	ErrCouponExpired        = errors.New("coupon has expired")
	ErrCouponMinimumNotMet  = errors.New("order amount is below the coupon minimum")
	ErrCouponRuleRejected   = errors.New("coupon conditions are not met")
	ErrOrderTerminal        = errors.New("order is already in a terminal state")
	ErrOrderCompleted       = errors.New("completed orders cannot be cancelled")
	ErrPaymentNotProcessed  = errors.New("order has no processed payment")
	ErrInventoryNotDeducted = errors.New("order inventory was not deducted")
	ErrInvalidOrder         = errors.New("invalid order")
)
