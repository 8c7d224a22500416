package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/pkg/mq"
	"ordersaga/internal/service/order/application/saga"
)

// StageConsumer drives one saga stage from its consumer group. Every polled
// message is dispatched with retries, dead-lettered when it still fails, and
// committed either way.
type StageConsumer struct {
	name              string
	bus               mq.Bus
	topics            []string
	group             string
	dispatcher        *saga.Dispatcher
	failureHandler    *mq.FailureHandler
	retry             mq.RetryConfig
	pollTimeout       time.Duration
	processingTimeout time.Duration
	tracer            trace.Tracer
}

type StageConsumerConfig struct {
	Route             saga.Route
	Topics            []string
	Group             string
	Retry             mq.RetryConfig
	PollTimeout       time.Duration
	ProcessingTimeout time.Duration
}

func NewStageConsumer(bus mq.Bus, failureHandler *mq.FailureHandler, cfg StageConsumerConfig) *StageConsumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 30 * time.Second
	}
	return &StageConsumer{
		name:              fmt.Sprintf("%s-consumer", cfg.Route.Stage),
		bus:               bus,
		topics:            cfg.Topics,
		group:             cfg.Group,
		dispatcher:        saga.NewDispatcher(cfg.Route),
		failureHandler:    failureHandler,
		retry:             cfg.Retry,
		pollTimeout:       cfg.PollTimeout,
		processingTimeout: cfg.ProcessingTimeout,
		tracer:            otel.Tracer("ordersaga/consumer"),
	}
}

func (c *StageConsumer) Name() string { return c.name }

// Run polls until ctx is cancelled or the bus closes.
func (c *StageConsumer) Run(ctx context.Context) error {
	consumer, err := c.bus.Subscribe(c.topics, c.group)
	if err != nil {
		return fmt.Errorf("%s: subscribe %v: %w", c.name, c.topics, err)
	}
	defer consumer.Close()

	log := logger.Ctx(ctx).With().Str("consumer", c.name).Str("group", c.group).Strs("topics", c.topics).Logger()
	log.Info().Msg("✅ stage consumer started")

	for {
		msg, err := consumer.Poll(ctx, c.pollTimeout)
		switch {
		case ctx.Err() != nil, errors.Is(err, mq.ErrClosed):
			log.Info().Msg("🛑 stage consumer shutting down")
			return nil
		case err != nil:
			log.Error().Err(err).Msg("could not poll message, retrying")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		case msg == nil:
			continue
		}
		c.process(ctx, consumer, msg)
	}
}

// process finishes msg even when ctx is cancelled meanwhile.
func (c *StageConsumer) process(ctx context.Context, consumer mq.Consumer, msg *mq.Message) {
	pctx := mq.ExtractTraceContext(context.WithoutCancel(ctx), msg.Headers)
	pctx, cancel := context.WithTimeout(pctx, c.processingTimeout)
	defer cancel()

	pctx, span := c.tracer.Start(pctx, "consume "+msg.Topic, trace.WithSpanKind(trace.SpanKindConsumer), trace.WithAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", msg.Topic),
		attribute.String("messaging.kafka.consumer_group", c.group),
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	))
	defer span.End()

	attempts, err := c.retry.Retry(pctx, func(ctx context.Context) error {
		return c.dispatcher.Dispatch(ctx, msg.Value)
	})
	if err != nil {
		span.RecordError(err)
		c.failureHandler.Handle(pctx, msg, err, attempts)
	}
	if err := consumer.Commit(pctx, msg); err != nil {
		logger.Ctx(pctx).Error().Err(err).Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("failed to commit message")
	}
}
