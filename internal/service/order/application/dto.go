package application

import (
	"time"

	"github.com/shopspring/decimal"

	"ordersaga/internal/service/order/domain"
)

type ItemRequest struct {
	ProductID uint64 `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PlaceOrderRequest is the input of the order-creation use case.
type PlaceOrderRequest struct {
	Customer      domain.Customer `json:"customer"`
	Items         []ItemRequest   `json:"items"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

type ItemView struct {
	ProductID   uint64          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
}

// OrderView is the order as returned to callers.
type OrderView struct {
	ID                   uint64          `json:"id"`
	OrderNumber          string          `json:"order_number"`
	CustomerID           uint64          `json:"customer_id"`
	Status               domain.Status   `json:"status"`
	CouponCode           string          `json:"coupon_code,omitempty"`
	PaymentMethod        string          `json:"payment_method"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	Tax                  decimal.Decimal `json:"tax"`
	Discount             decimal.Decimal `json:"discount"`
	Total                decimal.Decimal `json:"total"`
	IsCompleted          bool            `json:"is_completed"`
	FailureReason        string          `json:"failure_reason,omitempty"`
	CouponProcessedAt    *time.Time      `json:"coupon_processed_at,omitempty"`
	InventoryProcessedAt *time.Time      `json:"inventory_processed_at,omitempty"`
	PaymentProcessedAt   *time.Time      `json:"payment_processed_at,omitempty"`
	NotificationSentAt   *time.Time      `json:"notification_sent_at,omitempty"`
	Items                []ItemView      `json:"items"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type PaymentView struct {
	ID            uint64               `json:"id"`
	TransactionID string               `json:"transaction_id"`
	Method        string               `json:"method"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	Status        domain.PaymentStatus `json:"status"`
	CreatedAt     time.Time            `json:"created_at"`
}

type NotificationView struct {
	Channel   domain.Channel `json:"channel"`
	Recipient string         `json:"recipient"`
	Subject   string         `json:"subject,omitempty"`
	IsSent    bool           `json:"is_sent"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type LedgerView struct {
	ID           uint64             `json:"id"`
	EventType    string             `json:"event_type"`
	Status       domain.EventStatus `json:"status"`
	IsProcessed  bool               `json:"is_processed"`
	ErrorMessage string             `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	ProcessedAt  *time.Time         `json:"processed_at,omitempty"`
}

// OrderDetails is an order with everything recorded about it.
type OrderDetails struct {
	Order         OrderView          `json:"order"`
	Payments      []PaymentView      `json:"payments"`
	Notifications []NotificationView `json:"notifications"`
	Events        []LedgerView       `json:"events"`
}

// ActionResult reports a compensation that ran but could not succeed, the
// same way the gateway reports a decline.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func toOrderView(o *domain.Order) OrderView {
	v := OrderView{
		ID:                   o.ID,
		OrderNumber:          o.OrderNumber,
		CustomerID:           o.Customer.ID,
		Status:               o.Status,
		CouponCode:           o.CouponCode,
		PaymentMethod:        o.PaymentMethod,
		Subtotal:             o.Subtotal,
		Tax:                  o.Tax,
		Discount:             o.Discount,
		Total:                o.Total,
		IsCompleted:          o.IsCompleted,
		FailureReason:        o.FailureReason,
		CouponProcessedAt:    o.CouponProcessedAt,
		InventoryProcessedAt: o.InventoryProcessedAt,
		PaymentProcessedAt:   o.PaymentProcessedAt,
		NotificationSentAt:   o.NotificationSentAt,
		Items:                make([]ItemView, 0, len(o.Items)),
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, ItemView(it))
	}
	return v
}
