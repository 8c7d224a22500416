package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/event"
	"ordersaga/internal/service/order/domain/port"
)

// CouponHandler applies the order's coupon on order.created.
type CouponHandler struct {
	*runner
}

var couponStage = stageDef{
	stage:      StageCoupon,
	span:       "saga.CouponApply",
	ledgerType: domain.LedgerCouponProcessing,
	failure: func(orderID uint64, reason string) event.Payload {
		return &event.CouponFailed{OrderID: orderID, ErrorMessage: reason}
	},
}

func couponApplied(o *domain.Order) *event.CouponApplied {
	return &event.CouponApplied{OrderID: o.ID, DiscountAmount: o.Discount, OrderTotal: o.Total}
}

func couponFailed(orderID uint64, reason string) outcome {
	return failed(reason, &event.CouponFailed{OrderID: orderID, ErrorMessage: reason})
}

func (h *CouponHandler) Handle(ctx context.Context, ev event.Event) error {
	created, ok := ev.Payload.(*event.OrderCreated)
	if !ok {
		return unexpectedPayload(StageCoupon, ev)
	}
	return h.run(ctx, couponStage, ev, func(ctx context.Context, rec *StageRecord, log *zerolog.Logger) (outcome, error) {
		var out outcome
		err := h.deps.Store.Transaction(ctx, func(tx domain.Store) error {
			var err error
			out, err = h.apply(ctx, tx, rec, created.OrderID)
			return err
		})
		return out, err
	})
}

func (h *CouponHandler) apply(ctx context.Context, tx domain.Store, rec *StageRecord, orderID uint64) (outcome, error) {
	now := h.deps.Now()
	order, err := tx.Orders().FindForUpdate(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return couponFailed(orderID, fmt.Sprintf("order %d not found", orderID)), nil
	}
	if err != nil {
		return outcome{}, err
	}

	if order.IsCouponProcessed() {
		out := skipped("coupon already processed", couponApplied(order))
		return out, rec.Complete(ctx, tx.Events(), out.status, out.reason)
	}
	if order.Status.IsTerminal() {
		out := skipped(fmt.Sprintf("order is %s", order.Status), nil)
		return out, rec.Complete(ctx, tx.Events(), out.status, out.reason)
	}

	order.StartProcessing(now)

	if order.CouponCode == "" {
		order.ApplyDiscount(decimal.Zero)
		order.MarkCouponProcessed(now)
		if err := tx.Orders().Save(ctx, order); err != nil {
			return outcome{}, err
		}
		out := skipped("no coupon code", couponApplied(order))
		return out, rec.Complete(ctx, tx.Events(), out.status, out.reason)
	}

	coupon, err := tx.Coupons().FindByCode(ctx, order.CouponCode)
	if errors.Is(err, domain.ErrCouponNotFound) {
		return couponFailed(order.ID, fmt.Sprintf("coupon code '%s' not found", order.CouponCode)), nil
	}
	if err != nil {
		return outcome{}, err
	}
	if err := coupon.Validate(order.Subtotal, now); err != nil {
		return couponFailed(order.ID, err.Error()), nil
	}
	if coupon.Rule != "" {
		if reason := h.checkRule(coupon, order); reason != "" {
			return couponFailed(order.ID, reason), nil
		}
	}

	discount := coupon.Discount(order.Subtotal)
	if err := tx.Coupons().IncrementUsage(ctx, coupon.ID); err != nil {
		if errors.Is(err, domain.ErrCouponExhausted) {
			return couponFailed(order.ID, err.Error()), nil
		}
		return outcome{}, err
	}
	order.ApplyDiscount(discount)
	order.MarkCouponProcessed(now)
	if err := tx.Orders().Save(ctx, order); err != nil {
		return outcome{}, err
	}

	out := succeeded(couponApplied(order))
	return out, rec.Complete(ctx, tx.Events(), out.status, "")
}

// checkRule returns a failure reason, or "" when the rule admits the order.
func (h *CouponHandler) checkRule(c *domain.Coupon, o *domain.Order) string {
	if h.deps.Rules == nil {
		return fmt.Sprintf("coupon '%s' has a rule but no rule engine is configured", c.Code)
	}
	ok, err := h.deps.Rules.Evaluate(c.Rule, port.CouponFacts{
		Subtotal:      o.Subtotal,
		ItemCount:     o.ItemCount(),
		CustomerID:    o.Customer.ID,
		PaymentMethod: o.PaymentMethod,
	})
	if err != nil {
		return fmt.Sprintf("coupon '%s' rule could not be evaluated: %v", c.Code, err)
	}
	if !ok {
		return domain.ErrCouponRuleRejected.Error()
	}
	return ""
}
