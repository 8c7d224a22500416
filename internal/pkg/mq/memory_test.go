package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusKeepsPublishOrderAcrossTopics(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	c, err := bus.Subscribe([]string{"a", "b"}, "g")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "b", "1", []byte("first")))
	require.NoError(t, bus.Publish(ctx, "a", "1", []byte("second")))
	require.NoError(t, bus.Publish(ctx, "b", "1", []byte("third")))

	var got []string
	for i := 0; i < 3; i++ {
		msg, err := c.Poll(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, msg)
		got = append(got, string(msg.Value))
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)

	msg, err := c.Poll(ctx, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestMemoryBusRedeliversUncommitted(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	c, err := bus.Subscribe([]string{"t"}, "g")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "t", "k", []byte("one")))
	require.NoError(t, bus.Publish(ctx, "t", "k", []byte("two")))

	first, err := c.Poll(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, c.Commit(ctx, first))

	second, err := c.Poll(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "two", string(second.Value))
	assert.Equal(t, 1, bus.Lag("g", "t"))

	bus.Rewind("g")
	again, err := c.Poll(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "two", string(again.Value))
}

func TestMemoryBusGroupsAreIndependent(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	a, _ := bus.Subscribe([]string{"t"}, "ga")
	b, _ := bus.Subscribe([]string{"t"}, "gb")
	require.NoError(t, bus.Publish(ctx, "t", "k", []byte("x")))

	ma, err := a.Poll(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	mb, err := b.Poll(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ma.Value, mb.Value)
}

func TestMemoryBusPollWakesOnPublish(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	c, _ := bus.Subscribe([]string{"t"}, "g")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = bus.Publish(ctx, "t", "k", []byte("late"))
	}()
	msg, err := c.Poll(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "late", string(msg.Value))
}

func TestMemoryBusPublishFailure(t *testing.T) {
	bus := NewMemoryBus()
	boom := errors.New("broker unreachable")
	bus.FailPublishes(boom)
	assert.ErrorIs(t, bus.Publish(context.Background(), "t", "k", nil), boom)
	bus.FailPublishes(nil)
	assert.NoError(t, bus.Publish(context.Background(), "t", "k", nil))
}

func TestMemoryBusPollHonoursContext(t *testing.T) {
	bus := NewMemoryBus()
	c, _ := bus.Subscribe([]string{"t"}, "g")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Poll(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
