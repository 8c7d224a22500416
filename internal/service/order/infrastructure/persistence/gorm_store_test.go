package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ordersaga/internal/service/order/domain"
)

// sqlRecorder captures statements gorm builds in dry-run mode.
type sqlRecorder struct {
	mu  sync.Mutex
	sql []string
}

func (r *sqlRecorder) LogMode(gormlogger.LogLevel) gormlogger.Interface { return r }
func (r *sqlRecorder) Info(context.Context, string, ...interface{})     {}
func (r *sqlRecorder) Warn(context.Context, string, ...interface{})     {}
func (r *sqlRecorder) Error(context.Context, string, ...interface{})    {}
func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	s, _ := fc()
	r.mu.Lock()
	r.sql = append(r.sql, s)
	r.mu.Unlock()
}

func dryRunStore(t *testing.T) (*GormStore, *sqlRecorder) {
	t.Helper()
	rec := &sqlRecorder{}
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "saga:saga@tcp(127.0.0.1:3306)/saga?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: rec})
	require.NoError(t, err)
	return NewGormStore(db), rec
}

func TestFindForUpdateLocksRow(t *testing.T) {
	store, rec := dryRunStore(t)
	_, err := store.Orders().FindForUpdate(context.Background(), 7)
	require.NoError(t, err)
	require.NotEmpty(t, rec.sql)
	assert.Contains(t, rec.sql[0], "FROM `orders`")
	assert.Contains(t, rec.sql[0], "FOR UPDATE")
}

func TestDecreaseStockIsGuarded(t *testing.T) {
	store, rec := dryRunStore(t)
	err := store.Products().DecreaseStock(context.Background(), 7, 2)
	// nothing matched in dry-run, and the existence check counts zero rows
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	require.Len(t, rec.sql, 2)
	assert.Contains(t, rec.sql[0], "`stock`=stock - 2")
	assert.Contains(t, rec.sql[0], "id = 7 AND stock >= 2")
	assert.Contains(t, rec.sql[1], "count(*)")
}

func TestIncrementUsageIsGuarded(t *testing.T) {
	store, rec := dryRunStore(t)
	_ = store.Coupons().IncrementUsage(context.Background(), 3)
	require.NotEmpty(t, rec.sql)
	assert.Contains(t, rec.sql[0], "(max_uses IS NULL OR max_uses = 0 OR used_count < max_uses)")
	assert.Contains(t, rec.sql[0], "`used_count`=used_count + 1")
}

func TestSaveWritesScalarColumnsOnly(t *testing.T) {
	store, rec := dryRunStore(t)
	o := sampleOrder()
	require.NoError(t, store.Orders().Save(context.Background(), o))
	require.Len(t, rec.sql, 1)
	assert.Contains(t, rec.sql[0], "UPDATE `orders` SET")
	assert.Contains(t, rec.sql[0], "`status`='processing'")
	assert.NotContains(t, rec.sql[0], "order_items")
}

func TestOrderMapping(t *testing.T) {
	o := sampleOrder()
	back := toDomainOrder(fromDomainOrder(o))
	assert.Equal(t, o.Customer, back.Customer)
	assert.Equal(t, o.Items, back.Items)
	assert.True(t, o.Total.Equal(back.Total))
	assert.Equal(t, o.CouponProcessedAt, back.CouponProcessedAt)
	assert.Equal(t, domain.StatusProcessing, back.Status)
}

func TestPaymentDetailsAsJSON(t *testing.T) {
	p := &domain.Payment{OrderID: 1, Amount: decimal.NewFromInt(44000), Details: map[string]any{"status": "approved"}}
	m, err := fromDomainPayment(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"approved"}`, string(m.Details))
	assert.Equal(t, "approved", toDomainPayment(m).Details["status"])
}

func sampleOrder() *domain.Order {
	now := time.Date(2025, 9, 16, 10, 0, 0, 0, time.UTC)
	return &domain.Order{
		ID:          7,
		OrderNumber: "ORD-20250916-ABCD",
		Customer:    domain.Customer{ID: 1, Name: "Kim", Email: "kim@example.com", Phone: "010-1234-5678"},
		Items: []domain.OrderItem{{
			ProductID: 3, ProductName: "Keyboard", Quantity: 2,
			Price: decimal.NewFromInt(20000), Total: decimal.NewFromInt(40000),
		}},
		Subtotal:          decimal.NewFromInt(40000),
		Tax:               decimal.NewFromInt(4000),
		Discount:          decimal.Zero,
		Total:             decimal.NewFromInt(44000),
		Status:            domain.StatusProcessing,
		CouponProcessedAt: &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
