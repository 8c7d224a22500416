package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/event"
)

// FailureHandler consumes the *failed events: it closes the saga with a
// terminal ledger row, fails the order and tells the customer.
//
// Stock deducted before a payment failure stays deducted; restoring it is an
// explicit operation of the order service.
type FailureHandler struct {
	*runner
}

var failureLedgerTypes = map[event.Type]string{
	event.TypeCouponFailed:    domain.LedgerCouponFailed,
	event.TypeInventoryFailed: domain.LedgerInventoryFailed,
	event.TypePaymentFailed:   domain.LedgerPaymentFailed,
}

func (h *FailureHandler) Handle(ctx context.Context, ev event.Event) error {
	fp, ok := ev.Payload.(event.FailurePayload)
	if !ok {
		return unexpectedPayload(StageFailure, ev)
	}
	ledgerType := failureLedgerTypes[ev.EventType]
	orderID := fp.AggregateID()
	started := h.deps.Now()

	ctx, span := h.deps.Tracer.Start(ctx, "saga.HandleFailure", trace.WithAttributes(
		attribute.Int64("order.id", int64(orderID)),
		attribute.String("event.type", string(ev.EventType)),
	))
	defer span.End()
	span.SetStatus(codes.Error, fp.Reason())

	log := logger.Ctx(ctx).With().
		Str("stage", string(StageFailure)).
		Uint64("order_id", orderID).
		Str("event_id", ev.EventID).
		Str("failed_event", string(ev.EventType)).
		Logger()
	log.Warn().Str("reason", fp.Reason()).Msgf("WARN: [Order: %d] saga failed at %s", orderID, ev.EventType)

	release, err := h.deps.Locker.Acquire(ctx, lockKey(orderID, StageFailure))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("acquire failure lock for order %d: %w", orderID, err)
	}
	defer release()

	payload, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("marshal failure payload: %w", err)
	}

	var order *domain.Order
	duplicate := false
	err = h.deps.Store.Transaction(ctx, func(tx domain.Store) error {
		o, err := tx.Orders().FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == domain.StatusFailed {
			duplicate = true
			return nil
		}
		now := h.deps.Now()
		row := &domain.OrderEvent{
			OrderID:      orderID,
			EventType:    ledgerType,
			Payload:      payload,
			IsProcessed:  true,
			Status:       domain.EventFailed,
			ErrorMessage: fp.Reason(),
			ProcessedAt:  &now,
			CreatedAt:    now,
		}
		if err := tx.Events().Create(ctx, row); err != nil {
			return err
		}
		if err := o.Fail(fp.Reason(), now); err != nil {
			// completed or cancelled orders keep their status; the row above
			// still records the late failure
			log.Warn().Err(err).Msg("order not moved to failed")
			duplicate = true
			return nil
		}
		order = o
		return tx.Orders().Save(ctx, o)
	})
	if errors.Is(err, domain.ErrOrderNotFound) {
		log.Error().Msg("🚨 CRITICAL: failure event for unknown order dropped")
		h.deps.Metrics.ObserveStage(string(StageFailure), string(domain.EventSkipped), started)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("record failure of order %d: %w", orderID, err)
	}
	if duplicate {
		log.Info().Msg("INFO: failure already handled, not notifying again")
		h.deps.Metrics.ObserveStage(string(StageFailure), string(domain.EventSkipped), started)
		return nil
	}

	deliver(ctx, h.deps, order, failureSubject(order), failureEmail(order, fp.Reason()), failureSMS(order, fp.Reason()), &log)
	h.deps.Metrics.ObserveStage(string(StageFailure), string(domain.EventSuccess), started)
	return nil
}
