package mq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds connection settings shared by the writer and readers.
type KafkaConfig struct {
	Brokers     []string
	ClientID    string
	SendTimeout time.Duration
}

// NewKafkaWriter builds a topic-less writer. Messages are routed by key with
// the hash balancer, so every record of one order lands on one partition.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           timeout,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// ProduceMessage writes one record with the trace context of ctx injected
// into its headers.
func ProduceMessage(ctx context.Context, w *kafka.Writer, topic string, key, value []byte, headers ...kafka.Header) error {
	msg := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: InjectTraceContext(ctx, append([]kafka.Header(nil), headers...)),
		Time:    time.Now(),
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// KafkaBus is the kafka-go backed Bus.
type KafkaBus struct {
	cfg    KafkaConfig
	writer *kafka.Writer
}

func NewKafkaBus(cfg KafkaConfig) *KafkaBus {
	return &KafkaBus{cfg: cfg, writer: NewKafkaWriter(cfg)}
}

// Writer exposes the shared writer for adapters that produce outside the
// saga topics.
func (b *KafkaBus) Writer() *kafka.Writer { return b.writer }

func (b *KafkaBus) Publish(ctx context.Context, topic, key string, value []byte, headers ...kafka.Header) error {
	return ProduceMessage(ctx, b.writer, topic, []byte(key), value, headers...)
}

// Subscribe creates a consumer-group reader. Offsets are committed
// explicitly through Commit.
func (b *KafkaBus) Subscribe(topics []string, group string) (Consumer, error) {
	if len(topics) == 0 {
		return nil, errors.New("mq: subscribe needs at least one topic")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        b.cfg.Brokers,
		GroupID:        group,
		GroupTopics:    topics,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
	})
	return &kafkaConsumer{reader: r}, nil
}

// Close flushes the writer. Readers are owned by their consumers.
func (b *KafkaBus) Close() error {
	return b.writer.Close()
}

type kafkaConsumer struct {
	reader *kafka.Reader
}

func (c *kafkaConsumer) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	km, err := c.reader.FetchMessage(fetchCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return &Message{
		Topic:     km.Topic,
		Partition: km.Partition,
		Offset:    km.Offset,
		Key:       km.Key,
		Value:     km.Value,
		Headers:   km.Headers,
		Time:      km.Time,
		raw:       km,
	}, nil
}

func (c *kafkaConsumer) Commit(ctx context.Context, msg *Message) error {
	return c.reader.CommitMessages(ctx, msg.raw)
}

func (c *kafkaConsumer) Close() error {
	return c.reader.Close()
}
