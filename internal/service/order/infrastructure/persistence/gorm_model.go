package persistence

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderModel maps the orders table. The customer is stored as a snapshot.
type OrderModel struct {
	ID            uint64 `gorm:"primaryKey"`
	OrderNumber   string `gorm:"size:32;uniqueIndex"`
	CustomerID    uint64 `gorm:"index"`
	CustomerName  string `gorm:"size:191"`
	CustomerEmail string `gorm:"size:191"`
	CustomerPhone string `gorm:"size:32"`
	CouponCode    string `gorm:"size:64"`
	PaymentMethod string `gorm:"size:32"`
	Notes         string `gorm:"type:text"`

	Subtotal decimal.Decimal `gorm:"type:decimal(12,2)"`
	Tax      decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	Discount decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	Total    decimal.Decimal `gorm:"type:decimal(12,2)"`

	Status        string `gorm:"size:16;default:pending;index"`
	IsCompleted   bool   `gorm:"default:false"`
	FailureReason string `gorm:"type:text"`

	CouponProcessedAt    *time.Time
	InventoryProcessedAt *time.Time
	PaymentProcessedAt   *time.Time
	NotificationSentAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Items         []OrderItemModel    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments      []PaymentModel      `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Notifications []NotificationModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Events        []OrderEventModel   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (OrderModel) TableName() string { return "orders" }

type OrderItemModel struct {
	ID          uint64          `gorm:"primaryKey"`
	OrderID     uint64          `gorm:"index"`
	ProductID   uint64          `gorm:"index"`
	ProductName string          `gorm:"size:191"`
	Quantity    int             `gorm:"not null"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2)"`
	Total       decimal.Decimal `gorm:"type:decimal(12,2)"`
}

func (OrderItemModel) TableName() string { return "order_items" }

type ProductModel struct {
	ID       uint64          `gorm:"primaryKey"`
	Name     string          `gorm:"size:191"`
	SKU      string          `gorm:"size:64;uniqueIndex"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2)"`
	Stock    int             `gorm:"not null;default:0"`
	IsActive bool
}

func (ProductModel) TableName() string { return "products" }

type CouponModel struct {
	ID             uint64          `gorm:"primaryKey"`
	Code           string          `gorm:"size:64;uniqueIndex"`
	Name           string          `gorm:"size:191"`
	Type           string          `gorm:"size:16"`
	Value          decimal.Decimal `gorm:"type:decimal(12,2)"`
	MinOrderAmount decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	MaxUses        *int
	UsedCount      int `gorm:"not null;default:0"`
	StartsAt       *time.Time
	ExpiresAt      *time.Time
	IsActive       bool
	Rule           string `gorm:"type:text"`
}

func (CouponModel) TableName() string { return "coupons" }

type PaymentModel struct {
	ID            uint64          `gorm:"primaryKey"`
	OrderID       uint64          `gorm:"index"`
	TransactionID string          `gorm:"size:128"`
	Method        string          `gorm:"size:32"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2)"`
	Currency      string          `gorm:"size:8"`
	Status        string          `gorm:"size:16"`
	Details       datatypes.JSON
	CreatedAt     time.Time
}

func (PaymentModel) TableName() string { return "payments" }

type NotificationModel struct {
	ID        uint64 `gorm:"primaryKey"`
	OrderID   uint64 `gorm:"index"`
	Channel   string `gorm:"size:8"`
	Recipient string `gorm:"size:191"`
	Subject   string `gorm:"size:255"`
	Content   string `gorm:"type:text"`
	IsSent    bool
	SentAt    *time.Time
	Error     string `gorm:"type:text"`
	CreatedAt time.Time
}

func (NotificationModel) TableName() string { return "notifications" }

// OrderEventModel is the append-only ledger.
type OrderEventModel struct {
	ID           uint64 `gorm:"primaryKey"`
	OrderID      uint64 `gorm:"index:idx_order_events_order_type"`
	EventType    string `gorm:"size:64;index:idx_order_events_order_type"`
	Payload      datatypes.JSON
	IsProcessed  bool   `gorm:"default:false"`
	Status       string `gorm:"size:16;default:pending"`
	ErrorMessage string `gorm:"type:text"`
	ProcessedAt  *time.Time
	CreatedAt    time.Time
}

func (OrderEventModel) TableName() string { return "order_events" }

// Models lists every table in migration order.
func Models() []any {
	return []any{
		&ProductModel{},
		&CouponModel{},
		&OrderModel{},
		&OrderItemModel{},
		&PaymentModel{},
		&NotificationModel{},
		&OrderEventModel{},
	}
}
