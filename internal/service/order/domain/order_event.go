package domain

import (
	"encoding/json"
	"time"
)

type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventSuccess   EventStatus = "success"
	EventFailed    EventStatus = "failed"
	EventSkipped   EventStatus = "skipped"
	EventPublished EventStatus = "published"
)

// IsTerminal reports whether a ledger row is closed.
func (s EventStatus) IsTerminal() bool { return s != EventPending }

// Ledger event types written by the stages. Published envelopes use the
// topic name as their event type.
const (
	LedgerCouponProcessing       = "coupon_processing"
	LedgerInventoryProcessing    = "inventory_processing"
	LedgerPaymentProcessing      = "payment_processing"
	LedgerNotificationProcessing = "notification_processing"
	LedgerCouponFailed           = "coupon_failed"
	LedgerInventoryFailed        = "inventory_failed"
	LedgerPaymentFailed          = "payment_failed"
	LedgerInventoryRestoring     = "inventory_restoring"
	LedgerPaymentRefunding       = "payment_refunding"
)

// OrderEvent is one append-only ledger row. Rows are never deleted; a row
// opened as pending is closed exactly once.
type OrderEvent struct {
	ID           uint64
	OrderID      uint64
	EventType    string
	Payload      json.RawMessage
	IsProcessed  bool
	Status       EventStatus
	ErrorMessage string
	ProcessedAt  *time.Time
	CreatedAt    time.Time
}
