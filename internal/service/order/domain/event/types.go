package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type names a stage-transition event. The default topic of a type has the
// same name.
type Type string

const (
	TypeOrderCreated      Type = "order.created"
	TypeCouponApplied     Type = "order.coupon.applied"
	TypeCouponFailed      Type = "order.coupon.failed"
	TypeInventoryDeducted Type = "order.inventory.deducted"
	TypeInventoryFailed   Type = "order.inventory.failed"
	TypePaymentCompleted  Type = "order.payment.completed"
	TypePaymentFailed     Type = "order.payment.failed"
)

// AllTypes lists every event type in saga order.
var AllTypes = []Type{
	TypeOrderCreated,
	TypeCouponApplied, TypeCouponFailed,
	TypeInventoryDeducted, TypeInventoryFailed,
	TypePaymentCompleted, TypePaymentFailed,
}

// Payload is implemented by every event body.
type Payload interface {
	EventType() Type
	AggregateID() uint64
}

// FailurePayload is implemented by the three *failed events.
type FailurePayload interface {
	Payload
	Reason() string
}

type OrderItemSnapshot struct {
	ProductID uint64          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
}

// OrderCreated carries a snapshot of the order as it was persisted.
type OrderCreated struct {
	OrderID     uint64              `json:"order_id"`
	OrderNumber string              `json:"order_number"`
	CustomerID  uint64              `json:"customer_id"`
	Subtotal    decimal.Decimal     `json:"subtotal"`
	Tax         decimal.Decimal     `json:"tax"`
	Discount    decimal.Decimal     `json:"discount"`
	Total       decimal.Decimal     `json:"total"`
	Status      string              `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	Items       []OrderItemSnapshot `json:"items"`
}

type CouponApplied struct {
	OrderID        uint64          `json:"order_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	OrderTotal     decimal.Decimal `json:"order_total"`
}

type CouponFailed struct {
	OrderID      uint64 `json:"order_id"`
	ErrorMessage string `json:"error_message"`
}

type DeductedItem struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type InventoryDeducted struct {
	OrderID uint64         `json:"order_id"`
	Items   []DeductedItem `json:"items"`
}

type InventoryFailed struct {
	OrderID      uint64 `json:"order_id"`
	ErrorMessage string `json:"error_message"`
}

type PaymentCompleted struct {
	OrderID       uint64          `json:"order_id"`
	PaymentID     uint64          `json:"payment_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

type PaymentFailed struct {
	OrderID      uint64 `json:"order_id"`
	ErrorMessage string `json:"error_message"`
}

func (*OrderCreated) EventType() Type      { return TypeOrderCreated }
func (*CouponApplied) EventType() Type     { return TypeCouponApplied }
func (*CouponFailed) EventType() Type      { return TypeCouponFailed }
func (*InventoryDeducted) EventType() Type { return TypeInventoryDeducted }
func (*InventoryFailed) EventType() Type   { return TypeInventoryFailed }
func (*PaymentCompleted) EventType() Type  { return TypePaymentCompleted }
func (*PaymentFailed) EventType() Type     { return TypePaymentFailed }

func (p *OrderCreated) AggregateID() uint64      { return p.OrderID }
func (p *CouponApplied) AggregateID() uint64     { return p.OrderID }
func (p *CouponFailed) AggregateID() uint64      { return p.OrderID }
func (p *InventoryDeducted) AggregateID() uint64 { return p.OrderID }
func (p *InventoryFailed) AggregateID() uint64   { return p.OrderID }
func (p *PaymentCompleted) AggregateID() uint64  { return p.OrderID }
func (p *PaymentFailed) AggregateID() uint64     { return p.OrderID }

func (p *CouponFailed) Reason() string    { return p.ErrorMessage }
func (p *InventoryFailed) Reason() string { return p.ErrorMessage }
func (p *PaymentFailed) Reason() string   { return p.ErrorMessage }

// newPayload returns an empty body for t, or nil for unknown types.
func newPayload(t Type) Payload {
	switch t {
	case TypeOrderCreated:
		return &OrderCreated{}
	case TypeCouponApplied:
		return &CouponApplied{}
	case TypeCouponFailed:
		return &CouponFailed{}
	case TypeInventoryDeducted:
		return &InventoryDeducted{}
	case TypeInventoryFailed:
		return &InventoryFailed{}
	case TypePaymentCompleted:
		return &PaymentCompleted{}
	case TypePaymentFailed:
		return &PaymentFailed{}
	}
	return nil
}
