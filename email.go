package authcore

import (
	"context"
	"log/slog"
	"sync"
)

// Email is a single outbound message.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// EmailSender delivers email. Applications plug in their own transport.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// ConsoleEmailSender is a development sender that writes messages to the log.
type ConsoleEmailSender struct {
	Logger *slog.Logger
}

func (c *ConsoleEmailSender) Send(ctx context.Context, msg Email) error {
	loggerOrDefault(c.Logger).InfoContext(ctx, "email",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text)
	return nil
}

// RecordingEmailSender keeps every message it is asked to send. Useful in tests
// and for local development UIs that show outgoing mail.
type RecordingEmailSender struct {
	mu   sync.Mutex
	sent []Email

	// Err, if set, is returned from Send and the message is not recorded.
	Err error
}

func (r *RecordingEmailSender) Send(ctx context.Context, msg Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *RecordingEmailSender) Sent() []Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Email(nil), r.sent...)
}
