package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/service/order/domain/port"
)

// MockPaymentGateway approves every charge except those paid with a declined
// method. Charges are remembered by idempotency key so a retried charge
// returns the first transaction.
type MockPaymentGateway struct {
	declined map[string]bool
	now      func() time.Time

	mu      sync.Mutex
	charges map[string]port.ChargeResult
}

func NewMockPaymentGateway(declineMethods []string) *MockPaymentGateway {
	g := &MockPaymentGateway{
		declined: make(map[string]bool),
		now:      time.Now,
		charges:  make(map[string]port.ChargeResult),
	}
	for _, m := range declineMethods {
		g.declined[strings.ToLower(strings.TrimSpace(m))] = true
	}
	return g
}

func (g *MockPaymentGateway) Charge(ctx context.Context, req port.ChargeRequest) (port.ChargeResult, error) {
	if g.declined[strings.ToLower(req.PaymentMethod)] {
		logger.Ctx(ctx).Info().Uint64("order_id", req.OrderID).Str("method", req.PaymentMethod).Msg("mock gateway declined charge")
		return port.ChargeResult{
			Success: false,
			Message: fmt.Sprintf("payment declined for method '%s' (mock gateway)", req.PaymentMethod),
		}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.charges[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return res, nil
	}
	res := port.ChargeResult{
		Success:       true,
		TransactionID: "txn_" + shortID(),
		Details: map[string]any{
			"status":         "approved",
			"amount":         req.Amount.StringFixed(2),
			"currency":       req.Currency,
			"payment_method": req.PaymentMethod,
			"order_id":       req.OrderID,
			"customer_id":    req.CustomerID,
			"created_at":     g.now().UTC().Format(time.RFC3339),
		},
	}
	if req.IdempotencyKey != "" {
		g.charges[req.IdempotencyKey] = res
	}
	return res, nil
}

func (g *MockPaymentGateway) Refund(_ context.Context, transactionID string, amount decimal.Decimal) (port.RefundResult, error) {
	return port.RefundResult{
		Success:  true,
		RefundID: "ref_" + shortID(),
		Details: map[string]any{
			"status":          "refunded",
			"refunded_amount": amount.StringFixed(2),
			"transaction_id":  transactionID,
		},
	}, nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
}
