package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersaga/internal/service/order/domain"
)

func seedProduct(t *testing.T, s *Store, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: "Widget", SKU: "W-1", Price: decimal.NewFromInt(1000), Stock: stock, IsActive: true}
	require.NoError(t, s.Products().Create(context.Background(), p))
	return p
}

func TestTransactionRollsBackEveryWrite(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedProduct(t, s, 10)
	b := seedProduct(t, s, 3)

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx domain.Store) error {
		require.NoError(t, tx.Products().DecreaseStock(ctx, a.ID, 4))
		require.NoError(t, tx.Events().Create(ctx, &domain.OrderEvent{OrderID: 1, EventType: "x", Status: domain.EventPending}))
		if err := tx.Products().DecreaseStock(ctx, b.ID, 5); err != nil {
			assert.ErrorIs(t, err, domain.ErrInsufficientStock)
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Products().FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)
	events, _ := s.Events().ListByOrder(ctx, 1)
	assert.Empty(t, events)
}

func TestRollbackKeepsWritesMadeOutsideTheTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	err := s.Transaction(ctx, func(tx domain.Store) error {
		require.NoError(t, tx.Events().Create(ctx, &domain.OrderEvent{OrderID: 1, EventType: "inside"}))
		require.NoError(t, s.Events().Create(ctx, &domain.OrderEvent{OrderID: 1, EventType: "outside"}))
		return errors.New("rollback")
	})
	require.Error(t, err)

	events, _ := s.Events().ListByOrder(ctx, 1)
	require.Len(t, events, 1)
	assert.Equal(t, "outside", events[0].EventType)
}

func TestTransactionRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := seedProduct(t, s, 5)

	assert.Panics(t, func() {
		_ = s.Transaction(ctx, func(tx domain.Store) error {
			_ = tx.Products().DecreaseStock(ctx, p.ID, 5)
			panic("kaboom")
		})
	})
	got, _ := s.Products().FindByID(ctx, p.ID)
	assert.Equal(t, 5, got.Stock)
}

func TestOrderSaveDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	o, err := domain.NewOrder("ORD-1", domain.Customer{ID: 1}, []domain.OrderItem{{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(100)}}, decimal.NewFromFloat(0.1), time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Orders().Create(ctx, o))

	o.Status = domain.StatusFailed
	stored, err := s.Orders().FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)

	require.NoError(t, s.Orders().Save(ctx, o))
	stored, _ = s.Orders().FindByID(ctx, o.ID)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Len(t, stored.Items, 1)

	_, err = s.Orders().FindByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCouponUsageIsGuarded(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	maxUses := 1
	c := &domain.Coupon{Code: "ONCE", Type: domain.CouponFixed, Value: decimal.NewFromInt(1000), MaxUses: &maxUses, IsActive: true}
	require.NoError(t, s.Coupons().Create(ctx, c))
	assert.Error(t, s.Coupons().Create(ctx, &domain.Coupon{Code: "ONCE"}))

	require.NoError(t, s.Coupons().IncrementUsage(ctx, c.ID))
	assert.ErrorIs(t, s.Coupons().IncrementUsage(ctx, c.ID), domain.ErrCouponExhausted)

	got, err := s.Coupons().FindByCode(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedCount)

	_, err = s.Coupons().FindByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrCouponNotFound)
}

func TestLedgerUpdateClosesRow(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	row := &domain.OrderEvent{OrderID: 3, EventType: domain.LedgerCouponProcessing, Status: domain.EventPending}
	require.NoError(t, s.Events().Create(ctx, row))

	now := time.Now()
	row.Status = domain.EventSuccess
	row.IsProcessed = true
	row.ProcessedAt = &now
	require.NoError(t, s.Events().Update(ctx, row))

	rows, _ := s.Events().ListByOrder(ctx, 3)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.EventSuccess, rows[0].Status)
	assert.True(t, rows[0].IsProcessed)

	assert.Error(t, s.Events().Update(ctx, &domain.OrderEvent{ID: 12345}))
}

func TestCouponWithZeroMaxUsesIsUnlimited(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	zero := 0
	c := &domain.Coupon{Code: "OPEN", Type: domain.CouponFixed, Value: decimal.NewFromInt(500), MaxUses: &zero, IsActive: true}
	require.NoError(t, s.Coupons().Create(ctx, c))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Coupons().IncrementUsage(ctx, c.ID))
	}
	got, err := s.Coupons().FindByCode(ctx, "OPEN")
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsedCount)
}
