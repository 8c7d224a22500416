package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ordersaga/internal/service/order/domain"
	"ordersaga/internal/service/order/domain/event"
	"ordersaga/internal/service/order/domain/port"
)

// NotificationHandler confirms the order to the customer on
// order.payment.completed and completes it. Delivery problems are recorded
// but never fail the order.
type NotificationHandler struct {
	*runner
}

var notificationStage = stageDef{
	stage:      StageNotification,
	span:       "saga.NotificationSend",
	ledgerType: domain.LedgerNotificationProcessing,
}

func (h *NotificationHandler) Handle(ctx context.Context, ev event.Event) error {
	paid, ok := ev.Payload.(*event.PaymentCompleted)
	if !ok {
		return unexpectedPayload(StageNotification, ev)
	}
	return h.run(ctx, notificationStage, ev, func(ctx context.Context, rec *StageRecord, log *zerolog.Logger) (outcome, error) {
		return h.notify(ctx, rec, paid.OrderID, log)
	})
}

func (h *NotificationHandler) notify(ctx context.Context, rec *StageRecord, orderID uint64, log *zerolog.Logger) (outcome, error) {
	order, err := h.deps.Store.Orders().FindByID(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return failed(fmt.Sprintf("order %d not found", orderID), nil), nil
	}
	if err != nil {
		return outcome{}, err
	}

	if order.IsNotificationSent() {
		if order.Status != domain.StatusCompleted {
			if err := h.complete(ctx, nil, order.ID); err != nil {
				return outcome{}, err
			}
		}
		return skipped("notification already sent", nil), nil
	}
	if order.Status.IsTerminal() {
		return skipped(fmt.Sprintf("order is %s", order.Status), nil), nil
	}

	sent := deliver(ctx, h.deps, order, confirmationSubject(order),
		confirmationEmail(order, h.deps.Currency), confirmationSMS(order, h.deps.Currency), log)
	log.Info().Int("delivered", sent).Msg("confirmation notifications processed")

	var out outcome
	err = h.complete(ctx, func(tx domain.Store) error {
		out = succeeded(nil)
		return rec.Complete(ctx, tx.Events(), out.status, "")
	}, order.ID)
	return out, err
}

// complete marks the notification sent and the order completed, running
// also inside the same transaction.
func (h *NotificationHandler) complete(ctx context.Context, also func(tx domain.Store) error, orderID uint64) error {
	return h.deps.Store.Transaction(ctx, func(tx domain.Store) error {
		order, err := tx.Orders().FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		now := h.deps.Now()
		order.MarkNotificationSent(now)
		order.Complete(now)
		if err := tx.Orders().Save(ctx, order); err != nil {
			return err
		}
		if also != nil {
			return also(tx)
		}
		return nil
	})
}

// deliver sends an email and, when the customer has a phone, an SMS. Every
// attempt is appended to the notification log. It returns how many channels
// reported success.
func deliver(ctx context.Context, deps Deps, order *domain.Order, subject, email, sms string, log *zerolog.Logger) int {
	if deps.Notifier == nil {
		log.Warn().Msg("no notifier configured, skipping customer notification")
		return 0
	}
	sent := 0
	attempt := func(channel domain.Channel, recipient, subj, content string, send func() (port.SendResult, error)) {
		n := &domain.Notification{
			OrderID:   order.ID,
			Channel:   channel,
			Recipient: recipient,
			Subject:   subj,
			Content:   content,
			CreatedAt: deps.Now(),
		}
		res, err := send()
		switch {
		case err != nil:
			n.Error = err.Error()
		case !res.Success:
			n.Error = res.Message
		default:
			t := deps.Now()
			n.IsSent = true
			n.SentAt = &t
			sent++
		}
		if n.Error != "" {
			log.Warn().Str("channel", string(channel)).Str("error", n.Error).Msg("notification delivery failed")
		}
		if err := deps.Store.Notifications().Create(ctx, n); err != nil {
			log.Error().Err(err).Str("channel", string(channel)).Msg("failed to record notification")
		}
	}

	attempt(domain.ChannelEmail, order.Customer.Email, subject, email, func() (port.SendResult, error) {
		return deps.Notifier.SendEmail(ctx, order.Customer.Email, subject, email)
	})
	if order.Customer.Phone != "" {
		attempt(domain.ChannelSMS, order.Customer.Phone, "", sms, func() (port.SendResult, error) {
			return deps.Notifier.SendSMS(ctx, order.Customer.Phone, sms)
		})
	}
	return sent
}
