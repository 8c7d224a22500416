package port

import "context"

type SendResult struct {
	Success bool
	Message string
}

// Notifier delivers customer messages. Delivery problems are reported in
// the result; the error return is reserved for misconfiguration.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, content string) (SendResult, error)
	SendSMS(ctx context.Context, to, content string) (SendResult, error)
}
