package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ordersaga/internal/pkg/metrics"
	"ordersaga/internal/pkg/mq"
	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/event"
	"ordersaga/internal/service/order/domain/port"
)

// Stage names a saga step. Each stage consumes with its own consumer group.
type Stage string

const (
	StageCoupon       Stage = "coupon"
	StageInventory    Stage = "inventory"
	StagePayment      Stage = "payment"
	StageNotification Stage = "notification"
	StageFailure      Stage = "failure"
)

// Handler reacts to one decoded event. A returned error means the event
// should be redelivered; business failures are published as events instead.
type Handler interface {
	Handle(ctx context.Context, ev event.Event) error
}

// Deps are the collaborators shared by every stage.
type Deps struct {
	Store    domain.Store
	Bus      mq.Publisher
	Topics   event.Topics
	Locker   port.Locker
	Gateway  port.PaymentGateway
	Notifier port.Notifier
	// Rules evaluates coupon rules; coupons with a rule are rejected when nil.
	Rules    port.RuleEngine
	Tracer   trace.Tracer
	Metrics  *metrics.Saga
	Now      func() time.Time
	Currency string
}

// Saga wires the stage handlers over one set of dependencies.
type Saga struct {
	deps      Deps
	publisher *Publisher

	Coupon       *CouponHandler
	Inventory    *InventoryHandler
	Payment      *PaymentHandler
	Notification *NotificationHandler
	Failure      *FailureHandler
}

func New(deps Deps) (*Saga, error) {
	if deps.Store == nil || deps.Bus == nil || deps.Locker == nil {
		return nil, errors.New("saga: store, bus and locker are required")
	}
	if deps.Topics == nil {
		deps.Topics = event.DefaultTopics()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("ordersaga/saga")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Currency == "" {
		deps.Currency = "KRW"
	}

	s := &Saga{deps: deps}
	s.publisher = NewPublisher(deps.Bus, deps.Topics, deps.Store.Events(), deps.Now, deps.Metrics)
	r := &runner{deps: deps, publisher: s.publisher}
	s.Coupon = &CouponHandler{runner: r}
	s.Inventory = &InventoryHandler{runner: r}
	s.Payment = &PaymentHandler{runner: r}
	s.Notification = &NotificationHandler{runner: r}
	s.Failure = &FailureHandler{runner: r}
	return s, nil
}

// Publisher is the facade used by this saga, also used to emit order.created.
func (s *Saga) Publisher() *Publisher { return s.publisher }

// Topics is the registry the saga publishes with.
func (s *Saga) Topics() event.Topics { return s.deps.Topics }

func lockKey(orderID uint64, stage Stage) string {
	return fmt.Sprintf("order:%d:%s", orderID, stage)
}

// unexpectedPayload is returned when routing delivers the wrong event type.
// Redelivering it cannot help.
func unexpectedPayload(stage Stage, ev event.Event) error {
	return mq.Permanent(fmt.Errorf("%s stage cannot handle %s", stage, ev.EventType))
}
