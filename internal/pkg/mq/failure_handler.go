package mq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"ordersaga/internal/pkg/logger"
)

// RetryConfig controls how often a failing message is reprocessed before it
// is dead-lettered.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (c RetryConfig) Delay(attempt int) time.Duration {
	d := c.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * c.BackoffMultiplier)
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}

// Retry runs fn until it succeeds, returns a permanent error, ctx ends or
// MaxAttempts is reached. It returns the last error and the attempt count.
func (c RetryConfig) Retry(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt, nil
		}
		if IsPermanent(err) || attempt == attempts {
			return attempt, err
		}
		logger.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Msg("message processing failed, retrying")
		select {
		case <-ctx.Done():
			return attempt, err
		case <-time.After(c.Delay(attempt)):
		}
	}
	return attempts, err
}

// FailureHandler parks messages that could not be processed on the
// dead-letter topic together with where they came from and why they failed.
type FailureHandler struct {
	publisher Publisher
	dltTopic  string
	onDead    func(topic string)
}

func NewFailureHandler(publisher Publisher, dltTopic string) *FailureHandler {
	return &FailureHandler{publisher: publisher, dltTopic: dltTopic}
}

// OnDeadLetter registers a hook run after each successful dead-lettering.
func (h *FailureHandler) OnDeadLetter(fn func(topic string)) {
	h.onDead = fn
}

// Handle publishes msg to the dead-letter topic. A failure here only gets
// logged; the caller still commits so the partition keeps moving.
func (h *FailureHandler) Handle(ctx context.Context, msg *Message, cause error, attempts int) {
	headers := append([]kafka.Header(nil), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", cause))},
		kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderAttempts, Value: []byte(strconv.Itoa(attempts))},
	)

	if err := h.publisher.Publish(ctx, h.dltTopic, string(msg.Key), msg.Value, headers...); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("original_topic", msg.Topic).
			Int64("original_offset", msg.Offset).
			Msg("🚨 CRITICAL: failed to publish message to dead-letter topic")
		return
	}
	logger.Ctx(ctx).Warn().Err(cause).
		Str("original_topic", msg.Topic).
		Int64("original_offset", msg.Offset).
		Str("dlt_topic", h.dltTopic).
		Msg("message routed to dead-letter topic")
	if h.onDead != nil {
		h.onDead(msg.Topic)
	}
}
