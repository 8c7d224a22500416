package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment is an immutable gateway result. Refunds are stored as separate
// rows with a negative amount.
type Payment struct {
	ID            uint64
	OrderID       uint64
	TransactionID string
	Method        string
	Amount        decimal.Decimal
	Currency      string
	Status        PaymentStatus
	Details       map[string]any
	CreatedAt     time.Time
}
