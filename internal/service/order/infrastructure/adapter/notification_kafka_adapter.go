package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ordersaga/internal/pkg/mq"
	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/port"
)

const DefaultNotificationTopic = "notifications"

// NotificationMessage is what the delivery service consumes from the
// notifications topic.
type NotificationMessage struct {
	Channel   domain.Channel `json:"channel"`
	Recipient string         `json:"recipient"`
	Subject   string         `json:"subject,omitempty"`
	Content   string         `json:"content"`
	QueuedAt  time.Time      `json:"queued_at"`
}

// NotificationKafkaAdapter hands messages to a delivery service over Kafka.
// A message counts as sent once the broker has it.
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
	topic  string
	now    func() time.Time
}

func NewNotificationKafkaAdapter(writer *kafka.Writer, topic string) *NotificationKafkaAdapter {
	if topic == "" {
		topic = DefaultNotificationTopic
	}
	return &NotificationKafkaAdapter{writer: writer, topic: topic, now: time.Now}
}

func (a *NotificationKafkaAdapter) SendEmail(ctx context.Context, to, subject, content string) (port.SendResult, error) {
	return a.send(ctx, NotificationMessage{Channel: domain.ChannelEmail, Recipient: to, Subject: subject, Content: content})
}

func (a *NotificationKafkaAdapter) SendSMS(ctx context.Context, to, content string) (port.SendResult, error) {
	return a.send(ctx, NotificationMessage{Channel: domain.ChannelSMS, Recipient: to, Content: content})
}

func (a *NotificationKafkaAdapter) send(ctx context.Context, msg NotificationMessage) (port.SendResult, error) {
	msg.QueuedAt = a.now().UTC()
	value, err := json.Marshal(msg)
	if err != nil {
		return port.SendResult{}, fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := mq.ProduceMessage(ctx, a.writer, a.topic, []byte(msg.Recipient), value); err != nil {
		return port.SendResult{Success: false, Message: fmt.Sprintf("failed to queue %s notification: %v", msg.Channel, err)}, nil
	}
	return port.SendResult{Success: true, Message: fmt.Sprintf("%s notification queued", msg.Channel)}, nil
}
