package mq

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// Headers written on messages routed to the dead-letter topic.
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionFqcn     = "x-exception-fqcn"
	HeaderExceptionMessage  = "x-exception-message"
	HeaderAttempts          = "x-attempts"
)

// Message is a record fetched from the bus. Headers use the kafka-go header
// type on every implementation so trace propagation works the same way.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []kafka.Header
	Time      time.Time

	raw kafka.Message
}

// Header returns the value of the first header named key.
func (m *Message) Header(key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Publisher sends a keyed record to a topic. Records with the same key keep
// their relative order.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers ...kafka.Header) error
}

// Consumer reads records for one consumer group. Offsets only move when a
// record is committed.
type Consumer interface {
	// Poll blocks up to timeout and returns nil, nil when nothing arrived.
	Poll(ctx context.Context, timeout time.Duration) (*Message, error)
	Commit(ctx context.Context, msg *Message) error
	Close() error
}

// Bus is a Publisher that can also hand out consumers.
type Bus interface {
	Publisher
	Subscribe(topics []string, group string) (Consumer, error)
	Close() error
}

// ErrClosed is returned by operations on a closed bus or consumer.
var ErrClosed = errors.New("mq: closed")

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
