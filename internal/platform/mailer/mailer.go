package mailer

import (
	"context"
	"errors"
)

// ErrDisabled is returned when no mail transport is configured.
var ErrDisabled = errors.New("mailer disabled (set MAILERSEND_API_KEY or SMTP_HOST)")

// Sender delivers one message and returns the provider message id when there is one.
type Sender interface {
	Send(ctx context.Context, toEmail, toName, subject, text, html string) (string, error)
}

type Config struct {
	MailerSendAPIKey string
	FromName         string
	FromEmail        string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPTLS  bool
}

// New prefers MailerSend and falls back to SMTP. It returns nil when neither is configured.
func New(cfg Config) Sender {
	if m := NewMailer(cfg.MailerSendAPIKey, cfg.FromName, cfg.FromEmail); m.Enabled {
		return m
	}
	if cfg.SMTPHost != "" && cfg.FromEmail != "" {
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.FromEmail, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPTLS)
	}
	return nil
}
