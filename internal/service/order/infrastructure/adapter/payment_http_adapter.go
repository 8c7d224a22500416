package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ordersaga/internal/pkg/httpclient"
	"ordersaga/internal/service/order/domain/port"
)

// HTTPPaymentGateway talks JSON to an external gateway:
// POST {endpoint}/charges and POST {endpoint}/refunds with a bearer token.
//
// A 4xx answer is a decline. Transport errors and 5xx answers are returned
// as errors so the delivery is retried.
type HTTPPaymentGateway struct {
	client   *httpclient.Client
	endpoint string
	apiKey   string
	timeout  time.Duration
}

func NewHTTPPaymentGateway(client *httpclient.Client, endpoint, apiKey string, timeout time.Duration) *HTTPPaymentGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPaymentGateway{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		timeout:  timeout,
	}
}

type chargeBody struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	OrderID       uint64 `json:"order_id"`
	CustomerID    uint64 `json:"customer_id"`
	PaymentMethod string `json:"payment_method"`
	Description   string `json:"description"`
}

type refundBody struct {
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
}

func (g *HTTPPaymentGateway) Charge(ctx context.Context, req port.ChargeRequest) (port.ChargeResult, error) {
	var reply map[string]any
	body := chargeBody{
		Amount:        req.Amount.StringFixed(2),
		Currency:      req.Currency,
		OrderID:       req.OrderID,
		CustomerID:    req.CustomerID,
		PaymentMethod: req.PaymentMethod,
		Description:   "Order #" + req.OrderNumber,
	}
	declined, err := g.post(ctx, "/charges", req.IdempotencyKey, body, &reply)
	if err != nil {
		return port.ChargeResult{}, err
	}
	if declined != "" {
		return port.ChargeResult{Success: false, Message: "payment failed: " + declined}, nil
	}
	txn, _ := reply["transaction_id"].(string)
	if txn == "" {
		return port.ChargeResult{}, errors.New("payment gateway reply has no transaction_id")
	}
	return port.ChargeResult{Success: true, TransactionID: txn, Details: reply}, nil
}

func (g *HTTPPaymentGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (port.RefundResult, error) {
	var reply map[string]any
	body := refundBody{TransactionID: transactionID, Amount: amount.StringFixed(2)}
	declined, err := g.post(ctx, "/refunds", "refund-"+transactionID, body, &reply)
	if err != nil {
		return port.RefundResult{}, err
	}
	if declined != "" {
		return port.RefundResult{Success: false, Message: "refund failed: " + declined}, nil
	}
	id, _ := reply["refund_id"].(string)
	return port.RefundResult{Success: true, RefundID: id, Details: reply}, nil
}

// post returns the decline message for 4xx answers.
func (g *HTTPPaymentGateway) post(ctx context.Context, path, idempotencyKey string, body, out any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	err := g.client.PostJSON(ctx, g.endpoint+path, headers, body, out)
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.StatusCode >= http.StatusBadRequest && se.StatusCode < http.StatusInternalServerError {
		return declineMessage(se.Body), nil
	}
	if err != nil {
		return "", fmt.Errorf("payment gateway %s: %w", path, err)
	}
	return "", nil
}

func declineMessage(raw []byte) string {
	var reply struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &reply) == nil && reply.Message != "" {
		return reply.Message
	}
	return "unknown error"
}
