package interfaces

import (
	"context"
	"errors"
	"time"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/pkg/mq"
)

// DltConsumer logs every dead letter with where it came from and why it
// failed. Dead letters are committed right after logging.
type DltConsumer struct {
	bus         mq.Bus
	topic       string
	group       string
	pollTimeout time.Duration
	onMessage   func(DeadLetter)
}

// DeadLetter is a parsed dead-letter message.
type DeadLetter struct {
	OriginalTopic     string
	OriginalPartition string
	OriginalOffset    string
	ExceptionType     string
	ExceptionMessage  string
	Attempts          string
	Key               string
	Value             string
}

func NewDltConsumer(bus mq.Bus, topic, group string, pollTimeout time.Duration) *DltConsumer {
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &DltConsumer{bus: bus, topic: topic, group: group, pollTimeout: pollTimeout}
}

// OnMessage registers a hook run for each dead letter after it is logged.
func (a *DltConsumer) OnMessage(fn func(DeadLetter)) { a.onMessage = fn }

func (a *DltConsumer) Name() string { return "dlt-consumer" }

func (a *DltConsumer) Run(ctx context.Context) error {
	consumer, err := a.bus.Subscribe([]string{a.topic}, a.group)
	if err != nil {
		return err
	}
	defer consumer.Close()
	logger.Ctx(ctx).Info().Str("topic", a.topic).Msg("✅ DLT consumer started")

	for {
		msg, err := consumer.Poll(ctx, a.pollTimeout)
		if ctx.Err() != nil || errors.Is(err, mq.ErrClosed) {
			logger.Ctx(ctx).Info().Str("topic", a.topic).Msg("🛑 DLT consumer shutting down")
			return nil
		}
		if err != nil || msg == nil {
			continue
		}

		dl := parseDeadLetter(msg)
		logDeadLetter(ctx, dl)
		if a.onMessage != nil {
			a.onMessage(dl)
		}
		if err := consumer.Commit(context.WithoutCancel(ctx), msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit dead letter")
		}
	}
}

func parseDeadLetter(msg *mq.Message) DeadLetter {
	return DeadLetter{
		OriginalTopic:     msg.Header(mq.HeaderOriginalTopic),
		OriginalPartition: msg.Header(mq.HeaderOriginalPartition),
		OriginalOffset:    msg.Header(mq.HeaderOriginalOffset),
		ExceptionType:     msg.Header(mq.HeaderExceptionFqcn),
		ExceptionMessage:  msg.Header(mq.HeaderExceptionMessage),
		Attempts:          msg.Header(mq.HeaderAttempts),
		Key:               string(msg.Key),
		Value:             string(msg.Value),
	}
}

func logDeadLetter(ctx context.Context, dl DeadLetter) {
	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("original_topic", dl.OriginalTopic).
		Str("original_partition", dl.OriginalPartition).
		Str("original_offset", dl.OriginalOffset).
		Str("exception_fqcn", dl.ExceptionType).
		Str("exception_message", dl.ExceptionMessage).
		Str("attempts", dl.Attempts).
		Str("key", dl.Key).
		Str("value", dl.Value).
		Msg("🚨 CRITICAL: Dead letter message received")
}
