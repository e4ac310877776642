// Package notify delivers reminders to people. Delivery is best effort:
// callers log failures and move on.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Message is a plain-text notification addressed to one recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier sends a message.
type Notifier interface {
	Send(ctx context.Context, m Message) error
}

// LogNotifier writes messages to a zerolog logger instead of delivering them.
// It is the default when no mail provider is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Send implements Notifier.
func (n LogNotifier) Send(_ context.Context, m Message) error {
	n.Logger.Info().
		Str("to", m.To).
		Str("subject", m.Subject).
		Str("body", m.Body).
		Msg("notification")
	return nil
}
