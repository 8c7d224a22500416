package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int               { return &v }
func timePtr(t time.Time) *time.Time { return &t }

func TestCouponMinimumBoundary(t *testing.T) {
	c := &Coupon{Code: "WELCOME", Type: CouponFixed, Value: dec("5000"), MinOrderAmount: dec("50000"), IsActive: true}

	assert.ErrorIs(t, c.Validate(dec("49999"), now), ErrCouponMinimumNotMet)
	assert.NoError(t, c.Validate(dec("50000"), now))
}

func TestCouponValidity(t *testing.T) {
	base := func() *Coupon {
		return &Coupon{Code: "X", Type: CouponFixed, Value: dec("1000"), IsActive: true}
	}
	cases := []struct {
		name   string
		mutate func(c *Coupon)
		want   error
	}{
		{"valid", func(c *Coupon) {}, nil},
		{"inactive", func(c *Coupon) { c.IsActive = false }, ErrCouponInactive},
		{"not started", func(c *Coupon) { c.StartsAt = timePtr(now.Add(time.Hour)) }, ErrCouponNotStarted},
		{"expired", func(c *Coupon) { c.ExpiresAt = timePtr(now.Add(-time.Second)) }, ErrCouponExpired},
		{"exhausted", func(c *Coupon) { c.MaxUses = intPtr(3); c.UsedCount = 3 }, ErrCouponExhausted},
		{"uses left", func(c *Coupon) { c.MaxUses = intPtr(3); c.UsedCount = 2 }, nil},
		{"zero max uses is unlimited", func(c *Coupon) { c.MaxUses = intPtr(0); c.UsedCount = 50 }, nil},
		{"window open", func(c *Coupon) {
			c.StartsAt = timePtr(now.Add(-time.Hour))
			c.ExpiresAt = timePtr(now.Add(time.Hour))
		}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			err := c.Validate(dec("10000"), now)
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestCouponDiscount(t *testing.T) {
	pct := &Coupon{Type: CouponPercentage, Value: dec("10")}
	assert.True(t, pct.Discount(dec("100000")).Equal(dec("10000")))

	fixed := &Coupon{Type: CouponFixed, Value: dec("5000")}
	assert.True(t, fixed.Discount(dec("3000")).Equal(dec("3000")))
	assert.True(t, fixed.Discount(dec("8000")).Equal(dec("5000")))

	over := &Coupon{Type: CouponPercentage, Value: dec("150")}
	assert.True(t, over.Discount(dec("200")).Equal(dec("200")))
}
