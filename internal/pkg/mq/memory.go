package mq

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// MemoryBus is an in-process Bus with one partition per topic. Records are
// retained, each consumer group keeps its own read and commit cursors, and
// Rewind replays everything past the last commit the way a broker does after
// a consumer crash.
type MemoryBus struct {
	mu      sync.Mutex
	seq     int64
	topics  map[string][]*memRecord
	groups  map[string]*memGroup
	changed chan struct{}
	closed  bool

	publishErr error
}

type memRecord struct {
	seq int64
	msg Message
}

type memGroup struct {
	next      map[string]int
	committed map[string]int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics:  make(map[string][]*memRecord),
		groups:  make(map[string]*memGroup),
		changed: make(chan struct{}),
	}
}

// FailPublishes makes every Publish return err until called with nil.
func (b *MemoryBus) FailPublishes(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

func (b *MemoryBus) Publish(ctx context.Context, topic, key string, value []byte, headers ...kafka.Header) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.publishErr != nil {
		return b.publishErr
	}
	b.seq++
	records := b.topics[topic]
	rec := &memRecord{seq: b.seq, msg: Message{
		Topic:   topic,
		Offset:  int64(len(records)),
		Key:     []byte(key),
		Value:   append([]byte(nil), value...),
		Headers: InjectTraceContext(ctx, append([]kafka.Header(nil), headers...)),
		Time:    time.Now(),
	}}
	b.topics[topic] = append(records, rec)
	close(b.changed)
	b.changed = make(chan struct{})
	return nil
}

// Messages returns a copy of everything published to topic.
func (b *MemoryBus) Messages(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, 0, len(b.topics[topic]))
	for _, r := range b.topics[topic] {
		out = append(out, r.msg)
	}
	return out
}

// Rewind moves the read cursor of group back to its committed offsets.
func (b *MemoryBus) Rewind(group string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[group]
	if !ok {
		return
	}
	for topic := range g.next {
		g.next[topic] = g.committed[topic]
	}
}

// Lag returns the number of uncommitted records for group on topic.
func (b *MemoryBus) Lag(group, topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	committed := 0
	if g, ok := b.groups[group]; ok {
		committed = g.committed[topic]
	}
	return len(b.topics[topic]) - committed
}

func (b *MemoryBus) Subscribe(topics []string, group string) (Consumer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	g, ok := b.groups[group]
	if !ok {
		g = &memGroup{next: make(map[string]int), committed: make(map[string]int)}
		b.groups[group] = g
	}
	for _, t := range topics {
		if _, ok := g.next[t]; !ok {
			g.next[t] = g.committed[t]
		}
	}
	return &memConsumer{bus: b, group: g, topics: append([]string(nil), topics...)}, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.changed)
	}
	return nil
}

type memConsumer struct {
	bus    *MemoryBus
	group  *memGroup
	topics []string
	closed bool
}

// take pops the oldest unread record across the subscribed topics.
// Caller holds bus.mu.
func (c *memConsumer) take() *Message {
	var best *memRecord
	for _, t := range c.topics {
		records := c.bus.topics[t]
		if next := c.group.next[t]; next < len(records) {
			if best == nil || records[next].seq < best.seq {
				best = records[next]
			}
		}
	}
	if best == nil {
		return nil
	}
	c.group.next[best.msg.Topic]++
	msg := best.msg
	return &msg
}

func (c *memConsumer) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		c.bus.mu.Lock()
		if c.closed || c.bus.closed {
			c.bus.mu.Unlock()
			return nil, ErrClosed
		}
		if msg := c.take(); msg != nil {
			c.bus.mu.Unlock()
			return msg, nil
		}
		changed := c.bus.changed
		c.bus.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-changed:
		}
	}
}

func (c *memConsumer) Commit(ctx context.Context, msg *Message) error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	if next := int(msg.Offset) + 1; next > c.group.committed[msg.Topic] {
		c.group.committed[msg.Topic] = next
	}
	return nil
}

func (c *memConsumer) Close() error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	c.closed = true
	return nil
}
