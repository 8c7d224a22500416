package saga

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/pkg/metrics"
	"ordersaga/internal/pkg/mq"
	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/event"
)

// Publisher seals a payload into an envelope, records it in the order ledger
// and sends it keyed by order id.
type Publisher struct {
	bus     mq.Publisher
	topics  event.Topics
	events  domain.EventRepository
	now     func() time.Time
	metrics *metrics.Saga
}

func NewPublisher(bus mq.Publisher, topics event.Topics, events domain.EventRepository, now func() time.Time, m *metrics.Saga) *Publisher {
	if now == nil {
		now = time.Now
	}
	return &Publisher{bus: bus, topics: topics, events: events, now: now, metrics: m}
}

// Publish returns the broker error when the message could not be sent. The
// ledger row is then downgraded to failed; a ledger write problem alone is
// only logged.
func (p *Publisher) Publish(ctx context.Context, payload event.Payload) error {
	ev, err := event.Seal(payload, p.now())
	if err != nil {
		return err
	}
	raw, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	topic := p.topics.Topic(payload.EventType())
	log := logger.Ctx(ctx).With().
		Str("topic", topic).
		Uint64("order_id", ev.OrderID).
		Str("event_id", ev.EventID).
		Logger()

	published := p.now()
	row := &domain.OrderEvent{
		OrderID:     ev.OrderID,
		EventType:   topic,
		Payload:     raw,
		IsProcessed: false,
		Status:      domain.EventPublished,
		ProcessedAt: &published,
		CreatedAt:   published,
	}
	ledgerOK := true
	if err := p.events.Create(ctx, row); err != nil {
		ledgerOK = false
		log.Error().Err(err).Msg("failed to record published event in ledger")
	}

	if err := p.bus.Publish(ctx, topic, strconv.FormatUint(ev.OrderID, 10), raw); err != nil {
		p.metrics.PublishFailed(topic)
		log.Error().Err(err).Msg("failed to publish event")
		if ledgerOK {
			row.Status = domain.EventFailed
			row.ErrorMessage = err.Error()
			if uerr := p.events.Update(ctx, row); uerr != nil {
				log.Error().Err(uerr).Msg("failed to mark ledger row as failed")
			}
		}
		return fmt.Errorf("publish %s for order %d: %w", topic, ev.OrderID, err)
	}

	log.Info().Msg("event published")
	return nil
}
