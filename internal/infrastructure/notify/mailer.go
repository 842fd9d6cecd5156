// Package notify sends run reports over Mailgun
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"go.uber.org/zap"
)

// sendTimeout bounds one Mailgun API call
const sendTimeout = 20 * time.Second

// Config configures the Mailgun mailer
type Config struct {
	// Enabled turns real delivery on; when false, bodies are logged instead
	Enabled bool
	// Domain is the Mailgun sending domain
	Domain string
	// APIKey is the Mailgun private API key
	APIKey string
	// From is the sender address on outgoing reports
	From string
}

// Mailer sends plain-text mail through Mailgun
type Mailer struct {
	cfg    Config
	mg     *mailgun.MailgunImpl
	logger *zap.Logger
}

// NewMailer creates a mailer with the given configuration
func NewMailer(cfg Config, logger *zap.Logger) *Mailer {
	m := &Mailer{cfg: cfg, logger: logger.Named("notify")}
	if cfg.Enabled {
		m.mg = mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	}
	return m
}

// Send delivers body to recipients. With delivery disabled the message is
// logged and dropped.
func (m *Mailer) Send(ctx context.Context, subject, body string, recipients []string) error {
	if !m.cfg.Enabled {
		m.logger.Info("mail delivery disabled",
			zap.String("subject", subject),
			zap.Strings("recipients", recipients),
			zap.String("body", body))
		return nil
	}

	msg := m.mg.NewMessage(m.cfg.From, subject, body, recipients...)
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, id, err := m.mg.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("notify: send failed: %w", err)
	}
	m.logger.Debug("mail sent",
		zap.String("subject", subject),
		zap.String("message_id", id))
	return nil
}
