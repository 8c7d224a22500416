package domain

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification records one delivery attempt, successful or not.
type Notification struct {
	ID        uint64
	OrderID   uint64
	Channel   Channel
	Recipient string
	Subject   string
	Content   string
	IsSent    bool
	SentAt    *time.Time
	Error     string
	CreatedAt time.Time
}
