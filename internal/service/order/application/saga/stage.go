package saga

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/event"
)

// outcome is what a stage body decided. next, when set, is published after
// the ledger row is closed.
type outcome struct {
	status domain.EventStatus
	reason string
	next   event.Payload
}

func succeeded(next event.Payload) outcome {
	return outcome{status: domain.EventSuccess, next: next}
}

func skipped(reason string, next event.Payload) outcome {
	return outcome{status: domain.EventSkipped, reason: reason, next: next}
}

func failed(reason string, next event.Payload) outcome {
	return outcome{status: domain.EventFailed, reason: reason, next: next}
}

type stageDef struct {
	stage      Stage
	span       string
	ledgerType string
	// failure builds the event published when the body errors out. Nil for
	// stages whose failure must not fail the order.
	failure func(orderID uint64, reason string) event.Payload
}

type bodyFunc func(ctx context.Context, rec *StageRecord, log *zerolog.Logger) (outcome, error)

type runner struct {
	deps      Deps
	publisher *Publisher
}

// run wraps a stage body with the per-order lock, the ledger row, tracing,
// panic recovery and the final publish. Errors returned by run are
// infrastructure errors worth a redelivery.
func (r *runner) run(ctx context.Context, def stageDef, ev event.Event, body bodyFunc) error {
	started := r.deps.Now()
	orderID := ev.OrderID

	ctx, span := r.deps.Tracer.Start(ctx, def.span, trace.WithAttributes(
		attribute.Int64("order.id", int64(orderID)),
		attribute.String("event.id", ev.EventID),
		attribute.String("event.type", string(ev.EventType)),
	))
	defer span.End()

	log := logger.Ctx(ctx).With().
		Str("stage", string(def.stage)).
		Uint64("order_id", orderID).
		Str("event_id", ev.EventID).
		Logger()

	release, err := r.deps.Locker.Acquire(ctx, lockKey(orderID, def.stage))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock not acquired")
		return fmt.Errorf("acquire %s lock for order %d: %w", def.stage, orderID, err)
	}
	defer release()

	rec, err := openRecord(ctx, r.deps.Store.Events(), r.deps.Now, orderID, def.ledgerType, ev.Payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger unavailable")
		return fmt.Errorf("open %s ledger row: %w", def.ledgerType, err)
	}

	out, err := protect(ctx, rec, &log, body)
	if err != nil {
		log.Error().Err(err).Msg("stage failed unexpectedly")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		out = failed(err.Error(), nil)
		if def.failure != nil {
			out.next = def.failure(orderID, err.Error())
		}
		rec.done = false
	}

	if !rec.done {
		if cerr := rec.Complete(ctx, r.deps.Store.Events(), out.status, out.reason); cerr != nil {
			span.RecordError(cerr)
			return fmt.Errorf("close %s ledger row: %w", def.ledgerType, cerr)
		}
	}
	r.deps.Metrics.ObserveStage(string(def.stage), string(out.status), started)

	switch out.status {
	case domain.EventFailed:
		span.SetStatus(codes.Error, out.reason)
		log.Warn().Str("reason", out.reason).Msgf("WARN: [Order: %d] %s stage failed", orderID, def.stage)
	case domain.EventSkipped:
		span.AddEvent("stage skipped", trace.WithAttributes(attribute.String("reason", out.reason)))
		log.Info().Str("reason", out.reason).Msgf("INFO: [Order: %d] %s stage skipped", orderID, def.stage)
	default:
		log.Info().Msgf("SUCCESS: [Order: %d] %s stage done", orderID, def.stage)
	}

	if out.next == nil {
		return nil
	}
	return r.publisher.Publish(ctx, out.next)
}

// protect runs body and turns a panic into an error.
func protect(ctx context.Context, rec *StageRecord, log *zerolog.Logger, body bodyFunc) (out outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("panic", fmt.Sprint(p)).Bytes("stack", debug.Stack()).Msg("🚨 CRITICAL: stage panicked")
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return body(ctx, rec, log)
}
