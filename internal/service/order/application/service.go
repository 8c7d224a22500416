package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/service/order/application/saga"
	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/event"
	"ordersaga/internal/service/order/domain/port"
)

// DefaultTaxRate is applied to the subtotal when an order is placed.
var DefaultTaxRate = decimal.NewFromFloat(0.1)

// ErrNotPublished means the order was stored but order.created could not be
// sent. The order stays pending.
var ErrNotPublished = errors.New("order saved but order.created was not published")

// OrderApplicationService holds the synchronous use cases around the saga:
// placing an order and the manual compensations.
type OrderApplicationService struct {
	store     domain.Store
	publisher *saga.Publisher
	gateway   port.PaymentGateway
	tracer    trace.Tracer
	now       func() time.Time
	taxRate   decimal.Decimal
}

type Option func(*OrderApplicationService)

func WithClock(now func() time.Time) Option {
	return func(s *OrderApplicationService) { s.now = now }
}

func WithTaxRate(rate decimal.Decimal) Option {
	return func(s *OrderApplicationService) { s.taxRate = rate }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *OrderApplicationService) { s.tracer = t }
}

func NewOrderApplicationService(store domain.Store, publisher *saga.Publisher, gateway port.PaymentGateway, opts ...Option) *OrderApplicationService {
	s := &OrderApplicationService{
		store:     store,
		publisher: publisher,
		gateway:   gateway,
		tracer:    otel.Tracer("ordersaga/order"),
		now:       time.Now,
		taxRate:   DefaultTaxRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder prices the items from the catalogue, stores the order as
// pending and publishes order.created.
func (s *OrderApplicationService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.PlaceOrder", trace.WithAttributes(
		attribute.Int64("customer.id", int64(req.Customer.ID)),
		attribute.Int("order.lines", len(req.Items)),
	))
	defer span.End()

	if req.Customer.ID == 0 || req.Customer.Email == "" {
		return nil, fmt.Errorf("%w: customer id and email are required", domain.ErrInvalidOrder)
	}

	var order *domain.Order
	err := s.store.Transaction(ctx, func(tx domain.Store) error {
		items := make([]domain.OrderItem, 0, len(req.Items))
		for _, it := range req.Items {
			p, err := tx.Products().FindByID(ctx, it.ProductID)
			if errors.Is(err, domain.ErrProductNotFound) {
				return fmt.Errorf("%w: product %d not found", domain.ErrInvalidOrder, it.ProductID)
			}
			if err != nil {
				return err
			}
			if !p.IsActive {
				return fmt.Errorf("%w: product '%s' is not available", domain.ErrInvalidOrder, p.Name)
			}
			items = append(items, domain.OrderItem{
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    it.Quantity,
				Price:       p.Price,
			})
		}
		now := s.now()
		o, err := domain.NewOrder(orderNumber(now), req.Customer, items, s.taxRate, now)
		if err != nil {
			return err
		}
		o.CouponCode = strings.TrimSpace(req.CouponCode)
		o.PaymentMethod = req.PaymentMethod
		if o.PaymentMethod == "" {
			o.PaymentMethod = saga.DefaultPaymentMethod
		}
		o.Notes = req.Notes
		if err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order not placed")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", int64(order.ID)))

	log := logger.Ctx(ctx).With().Uint64("order_id", order.ID).Str("order_number", order.OrderNumber).Logger()
	view := toOrderView(order)
	if err := s.publisher.Publish(ctx, orderCreated(order)); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("order stored but saga not started")
		return &view, fmt.Errorf("%w: %v", ErrNotPublished, err)
	}
	log.Info().Str("total", order.Total.StringFixed(2)).Msg("order placed")
	return &view, nil
}

func orderCreated(o *domain.Order) *event.OrderCreated {
	p := &event.OrderCreated{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.Customer.ID,
		Subtotal:    o.Subtotal,
		Tax:         o.Tax,
		Discount:    o.Discount,
		Total:       o.Total,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
	}
	for _, it := range o.Items {
		p.Items = append(p.Items, event.OrderItemSnapshot{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Total:     it.Total,
		})
	}
	return p
}

// orderNumber is ORD-YYYYMMDD-XXXX.
func orderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

func (s *OrderApplicationService) GetOrder(ctx context.Context, id uint64) (*OrderDetails, error) {
	o, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.Payments().ListByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	notifications, err := s.store.Notifications().ListByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.store.Events().ListByOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &OrderDetails{
		Order:         toOrderView(o),
		Payments:      make([]PaymentView, 0, len(payments)),
		Notifications: make([]NotificationView, 0, len(notifications)),
		Events:        make([]LedgerView, 0, len(events)),
	}
	for _, p := range payments {
		d.Payments = append(d.Payments, PaymentView{
			ID: p.ID, TransactionID: p.TransactionID, Method: p.Method,
			Amount: p.Amount, Currency: p.Currency, Status: p.Status, CreatedAt: p.CreatedAt,
		})
	}
	for _, n := range notifications {
		d.Notifications = append(d.Notifications, NotificationView{
			Channel: n.Channel, Recipient: n.Recipient, Subject: n.Subject,
			IsSent: n.IsSent, Error: n.Error, CreatedAt: n.CreatedAt,
		})
	}
	for _, e := range events {
		d.Events = append(d.Events, LedgerView{
			ID: e.ID, EventType: e.EventType, Status: e.Status, IsProcessed: e.IsProcessed,
			ErrorMessage: e.ErrorMessage, CreatedAt: e.CreatedAt, ProcessedAt: e.ProcessedAt,
		})
	}
	return d, nil
}

// CancelOrder refuses completed orders. Stock deducted for the order is put
// back in the same transaction.
func (s *OrderApplicationService) CancelOrder(ctx context.Context, id uint64) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.CancelOrder", trace.WithAttributes(attribute.Int64("order.id", int64(id))))
	defer span.End()

	var order *domain.Order
	err := s.store.Transaction(ctx, func(tx domain.Store) error {
		o, err := tx.Orders().FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if err := o.Cancel(now); err != nil {
			return err
		}
		if o.IsInventoryProcessed() {
			for _, it := range o.Items {
				if err := tx.Products().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return fmt.Errorf("restore stock of product %d: %w", it.ProductID, err)
				}
			}
			o.ClearInventoryProcessed(now)
		}
		order = o
		return tx.Orders().Save(ctx, o)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Uint64("order_id", id).Msg("order cancelled")
	view := toOrderView(order)
	return &view, nil
}

// RestoreInventory puts deducted stock back. Orders whose stock was never
// deducted succeed without changes.
func (s *OrderApplicationService) RestoreInventory(ctx context.Context, id uint64) (*ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.RestoreInventory", trace.WithAttributes(attribute.Int64("order.id", int64(id))))
	defer span.End()
	log := logger.Ctx(ctx).With().Uint64("order_id", id).Logger()

	o, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsInventoryProcessed() {
		return &ActionResult{Success: true, Message: domain.ErrInventoryNotDeducted.Error()}, nil
	}

	row, err := s.openLedger(ctx, id, domain.LedgerInventoryRestoring, map[string]any{"order_id": id, "items": o.Items})
	if err != nil {
		return nil, err
	}

	var problems []string
	err = s.store.Transaction(ctx, func(tx domain.Store) error {
		locked, err := tx.Orders().FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !locked.IsInventoryProcessed() {
			return nil
		}
		for _, it := range locked.Items {
			err := tx.Products().IncreaseStock(ctx, it.ProductID, it.Quantity)
			if errors.Is(err, domain.ErrProductNotFound) {
				problems = append(problems, fmt.Sprintf("product %d not found", it.ProductID))
				continue
			}
			if err != nil {
				return err
			}
		}
		if len(problems) > 0 {
			return errRestoreAborted
		}
		now := s.now()
		locked.ClearInventoryProcessed(now)
		if err := tx.Orders().Save(ctx, locked); err != nil {
			return err
		}
		return s.closeLedger(ctx, tx.Events(), row, domain.EventSuccess, "")
	})
	if errors.Is(err, errRestoreAborted) {
		msg := strings.Join(problems, ", ")
		s.closeLedgerOrLog(ctx, row, domain.EventFailed, msg)
		log.Warn().Str("reason", msg).Msg("inventory restore rolled back")
		return &ActionResult{Success: false, Message: msg}, nil
	}
	if err != nil {
		s.closeLedgerOrLog(ctx, row, domain.EventFailed, err.Error())
		span.RecordError(err)
		return nil, err
	}
	log.Info().Msg("inventory restored")
	return &ActionResult{Success: true, Message: "inventory restored"}, nil
}

var errRestoreAborted = errors.New("inventory restore aborted")

// RefundPayment refunds the latest completed payment of a paid order.
// Refunding twice is a successful no-op.
func (s *OrderApplicationService) RefundPayment(ctx context.Context, id uint64) (*ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.RefundPayment", trace.WithAttributes(attribute.Int64("order.id", int64(id))))
	defer span.End()
	log := logger.Ctx(ctx).With().Uint64("order_id", id).Logger()

	o, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.IsPaymentProcessed() {
		return nil, domain.ErrPaymentNotProcessed
	}
	if o.Status == domain.StatusRefunded {
		return &ActionResult{Success: true, Message: "order already refunded"}, nil
	}

	payments, err := s.store.Payments().ListByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	var paid *domain.Payment
	for i := len(payments) - 1; i >= 0; i-- {
		if payments[i].Status == domain.PaymentCompleted {
			paid = &payments[i]
			break
		}
	}
	if paid == nil {
		return &ActionResult{Success: false, Message: "no completed payment to refund"}, nil
	}

	row, err := s.openLedger(ctx, id, domain.LedgerPaymentRefunding, map[string]any{
		"order_id": id, "payment_id": paid.ID, "amount": paid.Amount,
	})
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Refund(ctx, paid.TransactionID, paid.Amount)
	if err != nil {
		s.closeLedgerOrLog(ctx, row, domain.EventFailed, err.Error())
		span.RecordError(err)
		return nil, fmt.Errorf("refund order %d: %w", id, err)
	}
	if !res.Success {
		s.closeLedgerOrLog(ctx, row, domain.EventFailed, res.Message)
		log.Warn().Str("reason", res.Message).Msg("refund declined")
		return &ActionResult{Success: false, Message: res.Message}, nil
	}

	err = s.store.Transaction(ctx, func(tx domain.Store) error {
		locked, err := tx.Orders().FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		refund := &domain.Payment{
			OrderID:       id,
			TransactionID: res.RefundID,
			Method:        paid.Method,
			Amount:        paid.Amount.Neg(),
			Currency:      paid.Currency,
			Status:        domain.PaymentRefunded,
			Details:       res.Details,
			CreatedAt:     now,
		}
		if err := tx.Payments().Create(ctx, refund); err != nil {
			return err
		}
		locked.MarkRefunded(now)
		if err := tx.Orders().Save(ctx, locked); err != nil {
			return err
		}
		return s.closeLedger(ctx, tx.Events(), row, domain.EventSuccess, "")
	})
	if err != nil {
		// the gateway already refunded; the row keeps the refund id for reconciliation
		s.closeLedgerOrLog(ctx, row, domain.EventFailed, fmt.Sprintf("refund %s not recorded: %v", res.RefundID, err))
		log.Error().Err(err).Str("refund_id", res.RefundID).Msg("🚨 CRITICAL: refund issued but not recorded")
		return nil, err
	}
	log.Info().Str("refund_id", res.RefundID).Msg("payment refunded")
	return &ActionResult{Success: true, Message: "payment refunded"}, nil
}

func (s *OrderApplicationService) openLedger(ctx context.Context, orderID uint64, eventType string, payload any) (*domain.OrderEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger payload: %w", err)
	}
	row := &domain.OrderEvent{
		OrderID:   orderID,
		EventType: eventType,
		Payload:   raw,
		Status:    domain.EventPending,
		CreatedAt: s.now(),
	}
	if err := s.store.Events().Create(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *OrderApplicationService) closeLedger(ctx context.Context, repo domain.EventRepository, row *domain.OrderEvent, status domain.EventStatus, msg string) error {
	now := s.now()
	row.Status = status
	row.ErrorMessage = msg
	row.IsProcessed = true
	row.ProcessedAt = &now
	return repo.Update(ctx, row)
}

func (s *OrderApplicationService) closeLedgerOrLog(ctx context.Context, row *domain.OrderEvent, status domain.EventStatus, msg string) {
	if err := s.closeLedger(ctx, s.store.Events(), row, status, msg); err != nil {
		logger.Ctx(ctx).Error().Err(err).Uint64("ledger_id", row.ID).Msg("failed to close ledger row")
	}
}
