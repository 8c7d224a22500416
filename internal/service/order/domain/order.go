package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the buyer snapshot stored with an order.
type Customer struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// OrderItem is a priced line of an order. Total is Price x Quantity.
type OrderItem struct {
	ProductID   uint64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Total       decimal.Decimal
}

// Order is the aggregate root advanced by the saga stages.
type Order struct {
	ID            uint64
	OrderNumber   string
	Customer      Customer
	CouponCode    string
	PaymentMethod string
	Notes         string
	Items         []OrderItem

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal

	Status        Status
	IsCompleted   bool
	FailureReason string

	// Stage markers. Each is set once when its stage succeeds.
	CouponProcessedAt    *time.Time
	InventoryProcessedAt *time.Time
	PaymentProcessedAt   *time.Time
	NotificationSentAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder prices items and computes subtotal, tax and total. The order
// starts pending with no discount.
func NewOrder(number string, customer Customer, items []OrderItem, taxRate decimal.Decimal, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	o := &Order{
		OrderNumber: number,
		Customer:    customer,
		Status:      StatusPending,
		Discount:    decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity of product %d must be positive", ErrInvalidOrder, it.ProductID)
		}
		it.Total = it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		subtotal = subtotal.Add(it.Total)
		o.Items = append(o.Items, it)
	}
	o.Subtotal = subtotal
	o.Tax = subtotal.Mul(taxRate).Round(2)
	o.recalculate()
	return o, nil
}

// recalculate keeps Total = Subtotal + Tax - Discount, never below zero.
func (o *Order) recalculate() {
	total := o.Subtotal.Add(o.Tax).Sub(o.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.Total = total
}

// ApplyDiscount sets the discount, clamped to [0, Subtotal], and recomputes
// the total. It returns the discount actually applied.
func (o *Order) ApplyDiscount(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(o.Subtotal) {
		amount = o.Subtotal
	}
	o.Discount = amount
	o.recalculate()
	return amount
}

// ItemCount is the number of units across all lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

func (o *Order) touch(now time.Time) { o.UpdatedAt = now }

// StartProcessing moves a pending order to processing.
func (o *Order) StartProcessing(now time.Time) {
	if o.Status == StatusPending {
		o.Status = StatusProcessing
		o.touch(now)
	}
}

func setOnce(field **time.Time, now time.Time) bool {
	if *field != nil {
		return false
	}
	t := now
	*field = &t
	return true
}

func (o *Order) IsCouponProcessed() bool    { return o.CouponProcessedAt != nil }
func (o *Order) IsInventoryProcessed() bool { return o.InventoryProcessedAt != nil }
func (o *Order) IsPaymentProcessed() bool   { return o.PaymentProcessedAt != nil }
func (o *Order) IsNotificationSent() bool   { return o.NotificationSentAt != nil }

// The Mark* methods return false when the marker was already set.

func (o *Order) MarkCouponProcessed(now time.Time) bool {
	o.touch(now)
	return setOnce(&o.CouponProcessedAt, now)
}

func (o *Order) MarkInventoryProcessed(now time.Time) bool {
	o.touch(now)
	return setOnce(&o.InventoryProcessedAt, now)
}

func (o *Order) MarkPaymentProcessed(now time.Time) bool {
	o.touch(now)
	return setOnce(&o.PaymentProcessedAt, now)
}

func (o *Order) MarkNotificationSent(now time.Time) bool {
	o.touch(now)
	return setOnce(&o.NotificationSentAt, now)
}

// ClearInventoryProcessed is used only when stock is restored.
func (o *Order) ClearInventoryProcessed(now time.Time) {
	o.InventoryProcessedAt = nil
	o.touch(now)
}

func (o *Order) Complete(now time.Time) {
	o.Status = StatusCompleted
	o.IsCompleted = true
	o.touch(now)
}

// Fail records the reason and moves the order to failed. Orders that already
// completed or were cancelled/refunded are left alone.
func (o *Order) Fail(reason string, now time.Time) error {
	switch o.Status {
	case StatusCompleted, StatusCancelled, StatusRefunded:
		return fmt.Errorf("%w: %s", ErrOrderTerminal, o.Status)
	}
	o.Status = StatusFailed
	o.FailureReason = reason
	o.touch(now)
	return nil
}

// Cancel is refused for completed orders.
func (o *Order) Cancel(now time.Time) error {
	switch o.Status {
	case StatusCompleted:
		return ErrOrderCompleted
	case StatusCancelled, StatusRefunded:
		return fmt.Errorf("%w: %s", ErrOrderTerminal, o.Status)
	}
	o.Status = StatusCancelled
	o.touch(now)
	return nil
}

func (o *Order) MarkRefunded(now time.Time) {
	o.Status = StatusRefunded
	o.touch(now)
}
