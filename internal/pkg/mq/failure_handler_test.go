package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryConfigDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffMultiplier: 2}
	assert.Equal(t, 100*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 200*time.Millisecond, cfg.Delay(2))
	assert.Equal(t, 300*time.Millisecond, cfg.Delay(3))
	assert.Equal(t, 300*time.Millisecond, cfg.Delay(7))
}

func TestRetryStopsOnSuccess(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, BackoffMultiplier: 1}
	calls := 0
	attempts, err := cfg.Retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffMultiplier: 1}
	calls := 0
	attempts, err := cfg.Retry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("still down")
	})
	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}
	calls := 0
	attempts, err := cfg.Retry(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errors.New("bad payload"))
	})
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestFailureHandlerWritesDeadLetterHeaders(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	h := NewFailureHandler(bus, "order.saga.dlt")
	var dead []string
	h.OnDeadLetter(func(topic string) { dead = append(dead, topic) })

	msg := &Message{Topic: "order.created", Partition: 2, Offset: 41, Key: []byte("7"), Value: []byte("{not json")}
	h.Handle(ctx, msg, errors.New("decode failed"), 1)

	out := bus.Messages("order.saga.dlt")
	require.Len(t, out, 1)
	dl := out[0]
	assert.Equal(t, "7", string(dl.Key))
	assert.Equal(t, "{not json", string(dl.Value))
	assert.Equal(t, "order.created", dl.Header(HeaderOriginalTopic))
	assert.Equal(t, "2", dl.Header(HeaderOriginalPartition))
	assert.Equal(t, "41", dl.Header(HeaderOriginalOffset))
	assert.Equal(t, "decode failed", dl.Header(HeaderExceptionMessage))
	assert.Equal(t, "1", dl.Header(HeaderAttempts))
	assert.Equal(t, []string{"order.created"}, dead)
}
