package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ordersaga/internal/service/order/domain"
)

// Store is an in-process domain.Store. Transactions are serialized, which
// also stands in for row locks, and are rolled back with an undo log so that
// writes made outside the transaction survive a rollback.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	seq           uint64
	orders        map[uint64]*domain.Order
	coupons       map[uint64]*domain.Coupon
	products      map[uint64]*domain.Product
	payments      []*domain.Payment
	notifications []*domain.Notification
	events        []*domain.OrderEvent

	root *view
}

func NewStore() *Store {
	s := &Store{
		orders:   make(map[uint64]*domain.Order),
		coupons:  make(map[uint64]*domain.Coupon),
		products: make(map[uint64]*domain.Product),
	}
	s.root = &view{s: s}
	return s
}

func (s *Store) nextID() uint64 {
	s.seq++
	return s.seq
}

func (s *Store) Orders() domain.OrderRepository               { return s.root }
func (s *Store) Coupons() domain.CouponRepository             { return couponRepo{s.root} }
func (s *Store) Products() domain.ProductRepository           { return productRepo{s.root} }
func (s *Store) Payments() domain.PaymentRepository           { return paymentRepo{s.root} }
func (s *Store) Notifications() domain.NotificationRepository { return notificationRepo{s.root} }
func (s *Store) Events() domain.EventRepository               { return eventRepo{s.root} }

func (s *Store) Transaction(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.root.Transaction(ctx, fn)
}

// view is the Store as seen from outside or inside one transaction.
type view struct {
	s    *Store
	undo *[]func()
}

func (v *view) Orders() domain.OrderRepository               { return v }
func (v *view) Coupons() domain.CouponRepository             { return couponRepo{v} }
func (v *view) Products() domain.ProductRepository           { return productRepo{v} }
func (v *view) Payments() domain.PaymentRepository           { return paymentRepo{v} }
func (v *view) Notifications() domain.NotificationRepository { return notificationRepo{v} }
func (v *view) Events() domain.EventRepository               { return eventRepo{v} }

func (v *view) Transaction(ctx context.Context, fn func(tx domain.Store) error) (err error) {
	if v.undo != nil {
		return fn(v)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	v.s.txMu.Lock()
	defer v.s.txMu.Unlock()

	var undo []func()
	tx := &view{s: v.s, undo: &undo}
	rollback := func() {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
	defer func() {
		if r := recover(); r != nil {
			rollback()
			panic(r)
		}
	}()
	if err = fn(tx); err != nil {
		rollback()
		return err
	}
	return nil
}

// write runs fn under the data lock and, inside a transaction, records its
// inverse.
func (v *view) write(fn func() (inverse func())) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	inv := fn()
	if v.undo != nil && inv != nil {
		*v.undo = append(*v.undo, inv)
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	c.CouponProcessedAt = copyTime(o.CouponProcessedAt)
	c.InventoryProcessedAt = copyTime(o.InventoryProcessedAt)
	c.PaymentProcessedAt = copyTime(o.PaymentProcessedAt)
	c.NotificationSentAt = copyTime(o.NotificationSentAt)
	return &c
}

// Orders

func (v *view) Create(ctx context.Context, o *domain.Order) error {
	v.write(func() func() {
		o.ID = v.s.nextID()
		v.s.orders[o.ID] = cloneOrder(o)
		id := o.ID
		return func() { delete(v.s.orders, id) }
	})
	return nil
}

func (v *view) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	o, ok := v.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (v *view) FindForUpdate(ctx context.Context, id uint64) (*domain.Order, error) {
	return v.FindByID(ctx, id)
}

func (v *view) Save(ctx context.Context, o *domain.Order) error {
	var err error
	v.write(func() func() {
		prev, ok := v.s.orders[o.ID]
		if !ok {
			err = domain.ErrOrderNotFound
			return nil
		}
		next := cloneOrder(o)
		next.Items = prev.Items
		v.s.orders[o.ID] = next
		return func() { v.s.orders[o.ID] = prev }
	})
	return err
}

// Coupons

type couponRepo struct{ v *view }

func (r couponRepo) Create(ctx context.Context, c *domain.Coupon) error {
	var err error
	r.v.write(func() func() {
		for _, existing := range r.v.s.coupons {
			if existing.Code == c.Code {
				err = fmt.Errorf("coupon code %q already exists", c.Code)
				return nil
			}
		}
		c.ID = r.v.s.nextID()
		cp := *c
		r.v.s.coupons[c.ID] = &cp
		id := c.ID
		return func() { delete(r.v.s.coupons, id) }
	})
	return err
}

func (r couponRepo) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	for _, c := range r.v.s.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrCouponNotFound
}

func (r couponRepo) IncrementUsage(ctx context.Context, id uint64) error {
	var err error
	r.v.write(func() func() {
		c, ok := r.v.s.coupons[id]
		if !ok {
			err = domain.ErrCouponNotFound
			return nil
		}
		if c.Exhausted() {
			err = domain.ErrCouponExhausted
			return nil
		}
		c.UsedCount++
		return func() { c.UsedCount-- }
	})
	return err
}

// Products

type productRepo struct{ v *view }

func (r productRepo) Create(ctx context.Context, p *domain.Product) error {
	r.v.write(func() func() {
		p.ID = r.v.s.nextID()
		cp := *p
		r.v.s.products[p.ID] = &cp
		id := p.ID
		return func() { delete(r.v.s.products, id) }
	})
	return nil
}

func (r productRepo) FindByID(ctx context.Context, id uint64) (*domain.Product, error) {
	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	p, ok := r.v.s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r productRepo) DecreaseStock(ctx context.Context, id uint64, quantity int) error {
	var err error
	r.v.write(func() func() {
		p, ok := r.v.s.products[id]
		if !ok {
			err = domain.ErrProductNotFound
			return nil
		}
		if p.Stock < quantity {
			err = domain.ErrInsufficientStock
			return nil
		}
		p.Stock -= quantity
		return func() { p.Stock += quantity }
	})
	return err
}

func (r productRepo) IncreaseStock(ctx context.Context, id uint64, quantity int) error {
	var err error
	r.v.write(func() func() {
		p, ok := r.v.s.products[id]
		if !ok {
			err = domain.ErrProductNotFound
			return nil
		}
		p.Stock += quantity
		return func() { p.Stock -= quantity }
	})
	return err
}

// Payments

type paymentRepo struct{ v *view }

func (r paymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	r.v.write(func() func() {
		p.ID = r.v.s.nextID()
		cp := *p
		r.v.s.payments = append(r.v.s.payments, &cp)
		n := len(r.v.s.payments) - 1
		return func() { r.v.s.payments = removeAt(r.v.s.payments, n) }
	})
	return nil
}

func (r paymentRepo) ListByOrder(ctx context.Context, orderID uint64) ([]domain.Payment, error) {
	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.v.s.payments {
		if p.OrderID == orderID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Notifications

type notificationRepo struct{ v *view }

func (r notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	r.v.write(func() func() {
		n.ID = r.v.s.nextID()
		cp := *n
		r.v.s.notifications = append(r.v.s.notifications, &cp)
		i := len(r.v.s.notifications) - 1
		return func() { r.v.s.notifications = removeAt(r.v.s.notifications, i) }
	})
	return nil
}

func (r notificationRepo) ListByOrder(ctx context.Context, orderID uint64) ([]domain.Notification, error) {
	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.v.s.notifications {
		if n.OrderID == orderID {
			out = append(out, *n)
		}
	}
	return out, nil
}

// Ledger

type eventRepo struct{ v *view }

func (r eventRepo) Create(ctx context.Context, e *domain.OrderEvent) error {
	r.v.write(func() func() {
		e.ID = r.v.s.nextID()
		cp := *e
		r.v.s.events = append(r.v.s.events, &cp)
		i := len(r.v.s.events) - 1
		return func() { r.v.s.events = removeAt(r.v.s.events, i) }
	})
	return nil
}

func (r eventRepo) Update(ctx context.Context, e *domain.OrderEvent) error {
	var err error
	r.v.write(func() func() {
		for _, row := range r.v.s.events {
			if row.ID == e.ID {
				prev := *row
				row.Status = e.Status
				row.ErrorMessage = e.ErrorMessage
				row.IsProcessed = e.IsProcessed
				row.ProcessedAt = copyTime(e.ProcessedAt)
				return func() { *row = prev }
			}
		}
		err = fmt.Errorf("ledger row %d not found", e.ID)
		return nil
	})
	return err
}

func (r eventRepo) ListByOrder(ctx context.Context, orderID uint64) ([]domain.OrderEvent, error) {
	r.v.s.mu.Lock()
	defer r.v.s.mu.Unlock()
	var out []domain.OrderEvent
	for _, e := range r.v.s.events {
		if e.OrderID == orderID {
			out = append(out, *e)
		}
	}
	return out, nil
}

// removeAt drops element i. Only one transaction is open at a time and its
// undo entries run in reverse, so i still names the element it appended.
func removeAt[T any](s []T, i int) []T {
	return append(s[:i:i], s[i+1:]...)
}
