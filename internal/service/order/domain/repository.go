package domain

import "context"

// OrderRepository persists the order aggregate together with its items.
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id uint64) (*Order, error)
	// FindForUpdate loads the order and holds a row lock until the
	// surrounding transaction ends.
	FindForUpdate(ctx context.Context, id uint64) (*Order, error)
	// Save writes the scalar fields of the order. Items are immutable.
	Save(ctx context.Context, order *Order) error
}

type CouponRepository interface {
	Create(ctx context.Context, coupon *Coupon) error
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// IncrementUsage bumps used_count only while it is below max_uses and
	// returns ErrCouponExhausted otherwise.
	IncrementUsage(ctx context.Context, id uint64) error
}

type ProductRepository interface {
	Create(ctx context.Context, product *Product) error
	FindByID(ctx context.Context, id uint64) (*Product, error)
	// DecreaseStock is a guarded decrement returning ErrInsufficientStock
	// when fewer than quantity units are left.
	DecreaseStock(ctx context.Context, id uint64, quantity int) error
	IncreaseStock(ctx context.Context, id uint64, quantity int) error
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	ListByOrder(ctx context.Context, orderID uint64) ([]Payment, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListByOrder(ctx context.Context, orderID uint64) ([]Notification, error)
}

// EventRepository is the order ledger.
type EventRepository interface {
	Create(ctx context.Context, e *OrderEvent) error
	// Update closes a ledger row; only status, error, processed flags change.
	Update(ctx context.Context, e *OrderEvent) error
	ListByOrder(ctx context.Context, orderID uint64) ([]OrderEvent, error)
}

// Store gives access to every repository. Repositories obtained from the
// Store passed to a Transaction callback are bound to that transaction.
type Store interface {
	Orders() OrderRepository
	Coupons() CouponRepository
	Products() ProductRepository
	Payments() PaymentRepository
	Notifications() NotificationRepository
	Events() EventRepository

	// Transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
