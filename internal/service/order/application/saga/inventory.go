package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/event"
)

// InventoryHandler deducts stock for every item on order.coupon.applied.
// Either every line is deducted or none is.
type InventoryHandler struct {
	*runner
}

var inventoryStage = stageDef{
	stage:      StageInventory,
	span:       "saga.InventoryDeduct",
	ledgerType: domain.LedgerInventoryProcessing,
	failure: func(orderID uint64, reason string) event.Payload {
		return &event.InventoryFailed{OrderID: orderID, ErrorMessage: reason}
	},
}

// stockShortage aborts the inventory transaction with the per-item reasons.
type stockShortage struct {
	problems []string
}

func (e *stockShortage) Error() string { return strings.Join(e.problems, ", ") }

func inventoryDeducted(o *domain.Order) *event.InventoryDeducted {
	items := make([]event.DeductedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, event.DeductedItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return &event.InventoryDeducted{OrderID: o.ID, Items: items}
}

func inventoryFailed(orderID uint64, reason string) outcome {
	return failed(reason, &event.InventoryFailed{OrderID: orderID, ErrorMessage: reason})
}

func (h *InventoryHandler) Handle(ctx context.Context, ev event.Event) error {
	applied, ok := ev.Payload.(*event.CouponApplied)
	if !ok {
		return unexpectedPayload(StageInventory, ev)
	}
	return h.run(ctx, inventoryStage, ev, func(ctx context.Context, rec *StageRecord, log *zerolog.Logger) (outcome, error) {
		var out outcome
		err := h.deps.Store.Transaction(ctx, func(tx domain.Store) error {
			var err error
			out, err = h.deduct(ctx, tx, rec, applied.OrderID, log)
			return err
		})
		var shortage *stockShortage
		if errors.As(err, &shortage) {
			return inventoryFailed(applied.OrderID, shortage.Error()), nil
		}
		return out, err
	})
}

func (h *InventoryHandler) deduct(ctx context.Context, tx domain.Store, rec *StageRecord, orderID uint64, log *zerolog.Logger) (outcome, error) {
	now := h.deps.Now()
	order, err := tx.Orders().FindForUpdate(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return inventoryFailed(orderID, fmt.Sprintf("order %d not found", orderID)), nil
	}
	if err != nil {
		return outcome{}, err
	}

	if order.IsInventoryProcessed() {
		out := skipped("inventory already deducted", inventoryDeducted(order))
		return out, rec.Complete(ctx, tx.Events(), out.status, out.reason)
	}
	if order.Status.IsTerminal() {
		out := skipped(fmt.Sprintf("order is %s", order.Status), nil)
		return out, rec.Complete(ctx, tx.Events(), out.status, out.reason)
	}

	var problems []string
	for _, item := range order.Items {
		product, err := tx.Products().FindByID(ctx, item.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			problems = append(problems, fmt.Sprintf("product %d not found", item.ProductID))
			continue
		}
		if err != nil {
			return outcome{}, err
		}
		if !product.IsActive {
			problems = append(problems, fmt.Sprintf("product '%s' is not available", product.Name))
			continue
		}
		err = tx.Products().DecreaseStock(ctx, item.ProductID, item.Quantity)
		if errors.Is(err, domain.ErrInsufficientStock) {
			problems = append(problems, fmt.Sprintf("insufficient stock for '%s' (requested %d, available %d)", product.Name, item.Quantity, product.Stock))
			continue
		}
		if err != nil {
			return outcome{}, err
		}
		log.Debug().Uint64("product_id", item.ProductID).Int("quantity", item.Quantity).Msg("stock deducted")
	}
	if len(problems) > 0 {
		return outcome{}, &stockShortage{problems: problems}
	}

	order.StartProcessing(now)
	order.MarkInventoryProcessed(now)
	if err := tx.Orders().Save(ctx, order); err != nil {
		return outcome{}, err
	}
	out := succeeded(inventoryDeducted(order))
	return out, rec.Complete(ctx, tx.Events(), out.status, "")
}
