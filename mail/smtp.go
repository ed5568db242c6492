package mail

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"time"

	"go.uber.org/zap"

	"github.com/roadandrail/keg-auth/config"
)

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer builds a mailer from the SMTP configuration.
func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// Send delivers msg as a text/html mail.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	headers := map[string]string{
		"From":         m.cfg.From,
		"To":           msg.To,
		"Subject":      msg.Subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=UTF-8",
		"Date":         time.Now().Format(time.RFC1123Z),
	}

	var body bytes.Buffer
	for k, v := range headers {
		fmt.Fprintf(&body, "%s: %s\r\n", k, v)
	}
	body.WriteString("\r\n")
	body.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, body.Bytes()); err != nil {
		m.logger.Error("failed to send mail",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err))
		return fmt.Errorf("failed to send mail: %w", err)
	}

	m.logger.Info("mail sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}
