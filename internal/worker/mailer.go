package worker

import (
	"context"

	"kwetu-store/internal/util"

	"go.uber.org/zap"
)

// Email is an outbound message.
type Email struct {
	To      string
	Subject string
	Body    string
	Kind    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// LogMailer writes emails to the log instead of delivering them.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer backed by the structured log
func NewLogMailer() *LogMailer {
	return &LogMailer{logger: util.Component("mailer")}
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	m.logger.Info("Email dispatched",
		zap.String("to", email.To),
		zap.String("kind", email.Kind),
		zap.String("subject", email.Subject),
		zap.String("body", email.Body))
	return nil
}
