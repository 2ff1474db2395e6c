package authclient

import (
	"context"
	"log/slog"
)

// Mailer delivers email.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogDelivery writes messages to the log instead of sending them. It is
// meant for development: message bodies contain sign-in codes and links.
type LogDelivery struct {
	Logger *slog.Logger
}

func (d LogDelivery) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d LogDelivery) SendEmail(ctx context.Context, to, subject, body string) error {
	d.logger().InfoContext(ctx, "delivery.email", "to", to, "subject", subject, "body", body)
	return nil
}

func (d LogDelivery) SendSMS(ctx context.Context, to, body string) error {
	d.logger().InfoContext(ctx, "delivery.sms", "to", to, "body", body)
	return nil
}
