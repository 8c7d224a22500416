package adapter

import (
	"context"

	"ordersaga/internal/pkg/logger"
	"ordersaga/internal/service/order/domain/port"
)

// LogNotifier only logs. Used locally and in tests.
type LogNotifier struct{}

func (LogNotifier) SendEmail(ctx context.Context, to, subject, _ string) (port.SendResult, error) {
	logger.Ctx(ctx).Info().Str("to", to).Str("subject", subject).Msg("email delivery simulated")
	return port.SendResult{Success: true, Message: "email delivery simulated"}, nil
}

func (LogNotifier) SendSMS(ctx context.Context, to, content string) (port.SendResult, error) {
	logger.Ctx(ctx).Info().Str("to", to).Str("content", content).Msg("sms delivery simulated")
	return port.SendResult{Success: true, Message: "sms delivery simulated"}, nil
}
