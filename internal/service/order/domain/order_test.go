package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 9, 16, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	o, err := NewOrder("ORD-20250916-0001", Customer{ID: 1, Email: "a@b.c"}, []OrderItem{
		{ProductID: 1, Quantity: 2, Price: dec("10000")},
		{ProductID: 2, Quantity: 1, Price: dec("20000")},
	}, dec("0.1"), now)
	require.NoError(t, err)
	return o
}

func TestNewOrderComputesTotals(t *testing.T) {
	o := newTestOrder(t)
	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, o.Subtotal.Equal(dec("40000")))
	assert.True(t, o.Tax.Equal(dec("4000")))
	assert.True(t, o.Discount.IsZero())
	assert.True(t, o.Total.Equal(dec("44000")))
	assert.True(t, o.Items[0].Total.Equal(dec("20000")))
	assert.Equal(t, 3, o.ItemCount())
}

func TestNewOrderRejectsBadInput(t *testing.T) {
	_, err := NewOrder("n", Customer{}, nil, dec("0.1"), now)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = NewOrder("n", Customer{}, []OrderItem{{ProductID: 1, Quantity: 0, Price: dec("1")}}, dec("0.1"), now)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestTaxRoundsToCents(t *testing.T) {
	o, err := NewOrder("n", Customer{}, []OrderItem{{ProductID: 1, Quantity: 1, Price: dec("10.05")}}, dec("0.1"), now)
	require.NoError(t, err)
	assert.Equal(t, "1.01", o.Tax.StringFixed(2))
}

func TestApplyDiscountKeepsTotalsInvariant(t *testing.T) {
	cases := []struct {
		name     string
		discount string
		applied  string
		total    string
	}{
		{"regular", "5000", "5000", "39000"},
		{"negative clamps to zero", "-10", "0", "44000"},
		{"larger than subtotal clamps", "99999", "40000", "4000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := newTestOrder(t)
			applied := o.ApplyDiscount(dec(tc.discount))
			assert.True(t, applied.Equal(dec(tc.applied)), applied.String())
			assert.True(t, o.Total.Equal(dec(tc.total)), o.Total.String())
			assert.True(t, o.Total.Equal(o.Subtotal.Add(o.Tax).Sub(o.Discount)))
			assert.False(t, o.Total.IsNegative())
		})
	}
}

func TestStageMarkersAreSetOnce(t *testing.T) {
	o := newTestOrder(t)
	assert.True(t, o.MarkCouponProcessed(now))
	first := *o.CouponProcessedAt
	assert.False(t, o.MarkCouponProcessed(now.Add(time.Hour)))
	assert.Equal(t, first, *o.CouponProcessedAt)

	assert.True(t, o.MarkInventoryProcessed(now))
	o.ClearInventoryProcessed(now)
	assert.False(t, o.IsInventoryProcessed())
	assert.True(t, o.MarkInventoryProcessed(now))
}

func TestLifecycleTransitions(t *testing.T) {
	o := newTestOrder(t)
	o.StartProcessing(now)
	assert.Equal(t, StatusProcessing, o.Status)

	require.NoError(t, o.Fail("payment declined", now))
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, "payment declined", o.FailureReason)
	assert.True(t, o.Status.IsTerminal())

	require.NoError(t, o.Cancel(now))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.ErrorIs(t, o.Cancel(now), ErrOrderTerminal)

	done := newTestOrder(t)
	done.Complete(now)
	assert.True(t, done.IsCompleted)
	assert.ErrorIs(t, done.Cancel(now), ErrOrderCompleted)
	assert.ErrorIs(t, done.Fail("late", now), ErrOrderTerminal)
	assert.Equal(t, StatusCompleted, done.Status)
}
