package saga

import (
	"context"
	"fmt"

	"ordersaga/internal/pkg/mq"
	"ordersaga/internal/service/order/domain/event"
)

// Route binds a stage to the event types it consumes.
type Route struct {
	Stage   Stage
	Types   []event.Type
	Handler Handler
}

// Routes is the static choreography: which stage reacts to which event.
func (s *Saga) Routes() []Route {
	return []Route{
		{Stage: StageCoupon, Types: []event.Type{event.TypeOrderCreated}, Handler: s.Coupon},
		{Stage: StageInventory, Types: []event.Type{event.TypeCouponApplied}, Handler: s.Inventory},
		{Stage: StagePayment, Types: []event.Type{event.TypeInventoryDeducted}, Handler: s.Payment},
		{Stage: StageNotification, Types: []event.Type{event.TypePaymentCompleted}, Handler: s.Notification},
		{Stage: StageFailure, Types: []event.Type{event.TypeCouponFailed, event.TypeInventoryFailed, event.TypePaymentFailed}, Handler: s.Failure},
	}
}

// Route returns the route of stage.
func (s *Saga) Route(stage Stage) (Route, error) {
	for _, r := range s.Routes() {
		if r.Stage == stage {
			return r, nil
		}
	}
	return Route{}, fmt.Errorf("unknown stage %q", stage)
}

// Dispatcher looks up the handler of a decoded event in a table built once.
type Dispatcher struct {
	table map[event.Type]Handler
}

func NewDispatcher(routes ...Route) *Dispatcher {
	d := &Dispatcher{table: make(map[event.Type]Handler)}
	for _, r := range routes {
		for _, t := range r.Types {
			d.table[t] = r.Handler
		}
	}
	return d
}

// Dispatch decodes raw and hands it to its handler. Undecodable messages and
// types without a handler are permanent errors.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	ev, err := event.Decode(raw)
	if err != nil {
		return mq.Permanent(err)
	}
	h, ok := d.table[ev.EventType]
	if !ok {
		return mq.Permanent(fmt.Errorf("no handler for %s", ev.EventType))
	}
	return h.Handle(ctx, ev)
}
