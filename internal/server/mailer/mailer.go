// Package mailer delivers one-time recovery codes out of band.
package mailer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/pinvault/internal/logging"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// OtpMessage renders the recovery code email.
func OtpMessage(to, code string, ttlMinutes int) Message {
	return Message{
		To:      to,
		Subject: "Your PinVault recovery code",
		Body: fmt.Sprintf("Your recovery code is %s.\n\nIt expires in %d minutes. "+
			"If you did not ask to recover your vault, ignore this message.", code, ttlMinutes),
	}
}

// LogSender writes messages to the logger instead of sending them.
// Only meant for development setups.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(l logging.Logger) *LogSender {
	return &LogSender{logger: l.With("module", "mailer")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info(ctx, "mail", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
