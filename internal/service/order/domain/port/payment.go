package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest is what the payment stage sends to the gateway.
// IdempotencyKey is stable per order so a retried charge is recognised.
type ChargeRequest struct {
	OrderID        uint64
	OrderNumber    string
	CustomerID     uint64
	Amount         decimal.Decimal
	Currency       string
	PaymentMethod  string
	IdempotencyKey string
}

// ChargeResult is a declined charge when Success is false; Message says why.
type ChargeResult struct {
	Success       bool
	TransactionID string
	Message       string
	Details       map[string]any
}

type RefundResult struct {
	Success  bool
	RefundID string
	Message  string
	Details  map[string]any
}

// PaymentGateway charges and refunds. A returned error means the gateway
// could not be reached or answered garbage; declines are results.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (RefundResult, error)
}
