package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/event"
	"ordersaga/internal/service/order/domain/port"
)

const DefaultPaymentMethod = "card"

// PaymentHandler charges the order total on order.inventory.deducted.
// A declined charge fails the order; stock is not given back here.
type PaymentHandler struct {
	*runner
}

var paymentStage = stageDef{
	stage:      StagePayment,
	span:       "saga.PaymentCharge",
	ledgerType: domain.LedgerPaymentProcessing,
	failure: func(orderID uint64, reason string) event.Payload {
		return &event.PaymentFailed{OrderID: orderID, ErrorMessage: reason}
	},
}

func paymentCompleted(p *domain.Payment) *event.PaymentCompleted {
	return &event.PaymentCompleted{
		OrderID:       p.OrderID,
		PaymentID:     p.ID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		PaymentMethod: p.Method,
	}
}

func paymentFailed(orderID uint64, reason string) outcome {
	return failed(reason, &event.PaymentFailed{OrderID: orderID, ErrorMessage: reason})
}

// IdempotencyKey is the gateway key for the charge of one order.
func IdempotencyKey(orderID uint64) string {
	return fmt.Sprintf("order-%d-charge", orderID)
}

func (h *PaymentHandler) Handle(ctx context.Context, ev event.Event) error {
	deducted, ok := ev.Payload.(*event.InventoryDeducted)
	if !ok {
		return unexpectedPayload(StagePayment, ev)
	}
	return h.run(ctx, paymentStage, ev, func(ctx context.Context, rec *StageRecord, log *zerolog.Logger) (outcome, error) {
		return h.charge(ctx, rec, deducted.OrderID, log)
	})
}

func (h *PaymentHandler) charge(ctx context.Context, rec *StageRecord, orderID uint64, log *zerolog.Logger) (outcome, error) {
	order, err := h.deps.Store.Orders().FindByID(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return paymentFailed(orderID, fmt.Sprintf("order %d not found", orderID)), nil
	}
	if err != nil {
		return outcome{}, err
	}

	if order.IsPaymentProcessed() {
		payment, err := h.completedPayment(ctx, order.ID)
		if err != nil {
			return outcome{}, err
		}
		return skipped("payment already processed", paymentCompleted(payment)), nil
	}
	if order.Status.IsTerminal() {
		return skipped(fmt.Sprintf("order is %s", order.Status), nil), nil
	}
	if h.deps.Gateway == nil {
		return outcome{}, errors.New("no payment gateway configured")
	}

	method := order.PaymentMethod
	if method == "" {
		method = DefaultPaymentMethod
	}
	result, err := h.deps.Gateway.Charge(ctx, port.ChargeRequest{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.Customer.ID,
		Amount:         order.Total,
		Currency:       h.deps.Currency,
		PaymentMethod:  method,
		IdempotencyKey: IdempotencyKey(order.ID),
	})
	if err != nil {
		return outcome{}, fmt.Errorf("payment gateway: %w", err)
	}
	if !result.Success {
		reason := result.Message
		if reason == "" {
			reason = "payment declined"
		}
		return paymentFailed(order.ID, reason), nil
	}
	log.Info().Str("transaction_id", result.TransactionID).Msg("charge approved")

	payment := &domain.Payment{
		OrderID:       order.ID,
		TransactionID: result.TransactionID,
		Method:        method,
		Amount:        order.Total,
		Currency:      h.deps.Currency,
		Status:        domain.PaymentCompleted,
		Details:       result.Details,
		CreatedAt:     h.deps.Now(),
	}
	var out outcome
	var closed domain.Status
	err = h.deps.Store.Transaction(ctx, func(tx domain.Store) error {
		locked, err := tx.Orders().FindForUpdate(ctx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status.IsTerminal() {
			closed = locked.Status
			return errOrderClosed
		}
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}
		locked.StartProcessing(h.deps.Now())
		locked.MarkPaymentProcessed(h.deps.Now())
		if err := tx.Orders().Save(ctx, locked); err != nil {
			return err
		}
		out = succeeded(paymentCompleted(payment))
		return rec.Complete(ctx, tx.Events(), out.status, "")
	})
	if errors.Is(err, errOrderClosed) {
		return h.reverse(ctx, order, closed, result.TransactionID, log)
	}
	return out, err
}

var errOrderClosed = errors.New("order closed while charging")

// reverse refunds a charge approved for an order that went terminal while the
// gateway call was in flight. No payment row is kept and nothing is published.
func (h *PaymentHandler) reverse(ctx context.Context, order *domain.Order, status domain.Status, transactionID string, log *zerolog.Logger) (outcome, error) {
	log.Warn().Str("transaction_id", transactionID).Str("status", string(status)).Msg("order closed during charge, refunding")
	refund, err := openRecord(ctx, h.deps.Store.Events(), h.deps.Now, order.ID, domain.LedgerPaymentRefunding, map[string]any{
		"order_id": order.ID, "transaction_id": transactionID, "amount": order.Total,
	})
	if err != nil {
		return outcome{}, err
	}

	res, err := h.deps.Gateway.Refund(ctx, transactionID, order.Total)
	if err == nil && !res.Success {
		err = errors.New(res.Message)
	}
	if err != nil {
		msg := fmt.Sprintf("refund of %s failed: %v", transactionID, err)
		if cerr := refund.Complete(ctx, h.deps.Store.Events(), domain.EventFailed, msg); cerr != nil {
			return outcome{}, cerr
		}
		log.Error().Err(err).Str("transaction_id", transactionID).Msg("🚨 CRITICAL: order closed but charge not refunded")
		return failed(msg, nil), nil
	}
	if err := refund.Complete(ctx, h.deps.Store.Events(), domain.EventSuccess, ""); err != nil {
		return outcome{}, err
	}
	return skipped(fmt.Sprintf("order is %s; charge %s refunded as %s", status, transactionID, res.RefundID), nil), nil
}

func (h *PaymentHandler) completedPayment(ctx context.Context, orderID uint64) (*domain.Payment, error) {
	payments, err := h.deps.Store.Payments().ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := len(payments) - 1; i >= 0; i-- {
		if payments[i].Status == domain.PaymentCompleted {
			return &payments[i], nil
		}
	}
	return nil, fmt.Errorf("order %d is marked paid but has no completed payment", orderID)
}
