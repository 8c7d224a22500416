package persistence

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ordersaga/internal/service/order/domain"
)

// GormStore implements domain.Store on gorm. Inside Transaction every
// repository shares the transaction handle.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Orders() domain.OrderRepository               { return orderRepo{s.db} }
func (s *GormStore) Coupons() domain.CouponRepository             { return couponRepo{s.db} }
func (s *GormStore) Products() domain.ProductRepository           { return productRepo{s.db} }
func (s *GormStore) Payments() domain.PaymentRepository           { return paymentRepo{s.db} }
func (s *GormStore) Notifications() domain.NotificationRepository { return notificationRepo{s.db} }
func (s *GormStore) Events() domain.EventRepository               { return eventRepo{s.db} }

func (s *GormStore) Transaction(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

type orderRepo struct{ db *gorm.DB }

func (r orderRepo) Create(ctx context.Context, o *domain.Order) error {
	m := fromDomainOrder(o)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrapf(err, "create order %s", o.OrderNumber)
	}
	o.ID = m.ID
	return nil
}

func (r orderRepo) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	return r.find(r.db.WithContext(ctx), id)
}

func (r orderRepo) FindForUpdate(ctx context.Context, id uint64) (*domain.Order, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r orderRepo) find(db *gorm.DB, id uint64) (*domain.Order, error) {
	var m OrderModel
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find order %d", id)
	}
	return toDomainOrder(&m), nil
}

func (r orderRepo) Save(ctx context.Context, o *domain.Order) error {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", o.ID).Updates(orderColumns(o))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "save order %d", o.ID)
	}
	return nil
}

type couponRepo struct{ db *gorm.DB }

func (r couponRepo) Create(ctx context.Context, c *domain.Coupon) error {
	m := fromDomainCoupon(c)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrapf(err, "create coupon %s", c.Code)
	}
	c.ID = m.ID
	return nil
}

func (r couponRepo) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var m CouponModel
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCouponNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %s", code)
	}
	return toDomainCoupon(&m), nil
}

func (r couponRepo) IncrementUsage(ctx context.Context, id uint64) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&CouponModel{}).
		Where("id = ? AND (max_uses IS NULL OR max_uses = 0 OR used_count < max_uses)", id).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "increment usage of coupon %d", id)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return missingOr(db, &CouponModel{}, id, domain.ErrCouponNotFound, domain.ErrCouponExhausted)
}

type productRepo struct{ db *gorm.DB }

func (r productRepo) Create(ctx context.Context, p *domain.Product) error {
	m := fromDomainProduct(p)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrapf(err, "create product %s", p.SKU)
	}
	p.ID = m.ID
	return nil
}

func (r productRepo) FindByID(ctx context.Context, id uint64) (*domain.Product, error) {
	var m ProductModel
	err := r.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find product %d", id)
	}
	return toDomainProduct(&m), nil
}

func (r productRepo) DecreaseStock(ctx context.Context, id uint64, quantity int) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&ProductModel{}).
		Where("id = ? AND stock >= ?", id, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "decrease stock of product %d", id)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return missingOr(db, &ProductModel{}, id, domain.ErrProductNotFound, domain.ErrInsufficientStock)
}

func (r productRepo) IncreaseStock(ctx context.Context, id uint64, quantity int) error {
	res := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "increase stock of product %d", id)
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// missingOr tells a guarded update that matched nothing because the row is
// gone from one whose guard failed.
func missingOr(db *gorm.DB, model any, id uint64, missing, guarded error) error {
	var n int64
	if err := db.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return errors.Wrapf(err, "check row %d", id)
	}
	if n == 0 {
		return missing
	}
	return guarded
}

type paymentRepo struct{ db *gorm.DB }

func (r paymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	m, err := fromDomainPayment(p)
	if err != nil {
		return errors.Wrap(err, "encode payment details")
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrapf(err, "create payment for order %d", p.OrderID)
	}
	p.ID = m.ID
	return nil
}

func (r paymentRepo) ListByOrder(ctx context.Context, orderID uint64) ([]domain.Payment, error) {
	var rows []PaymentModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "list payments of order %d", orderID)
	}
	out := make([]domain.Payment, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainPayment(&rows[i]))
	}
	return out, nil
}

type notificationRepo struct{ db *gorm.DB }

func (r notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	m := fromDomainNotification(n)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrapf(err, "create notification for order %d", n.OrderID)
	}
	n.ID = m.ID
	return nil
}

func (r notificationRepo) ListByOrder(ctx context.Context, orderID uint64) ([]domain.Notification, error) {
	var rows []NotificationModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "list notifications of order %d", orderID)
	}
	out := make([]domain.Notification, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainNotification(&rows[i]))
	}
	return out, nil
}

type eventRepo struct{ db *gorm.DB }

func (r eventRepo) Create(ctx context.Context, e *domain.OrderEvent) error {
	m := fromDomainEvent(e)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return errors.Wrapf(err, "create %s ledger row for order %d", e.EventType, e.OrderID)
	}
	e.ID = m.ID
	return nil
}

func (r eventRepo) Update(ctx context.Context, e *domain.OrderEvent) error {
	res := r.db.WithContext(ctx).Model(&OrderEventModel{}).Where("id = ?", e.ID).Updates(map[string]any{
		"status":        string(e.Status),
		"error_message": e.ErrorMessage,
		"is_processed":  e.IsProcessed,
		"processed_at":  e.ProcessedAt,
	})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update ledger row %d", e.ID)
	}
	return nil
}

func (r eventRepo) ListByOrder(ctx context.Context, orderID uint64) ([]domain.OrderEvent, error) {
	var rows []OrderEventModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "list ledger of order %d", orderID)
	}
	out := make([]domain.OrderEvent, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainEvent(&rows[i]))
	}
	return out, nil
}
