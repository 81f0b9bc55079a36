// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package notify

import (
	"context"
	"crypto/tls"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"

	"github.com/empaai/empaai/internal/auth"
)

// SMTPConfig holds SMTP transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username when empty.
	From string
	// Secure selects implicit TLS (SMTPS) instead of STARTTLS.
	Secure bool
}

// Dialer sends messages over SMTP. *gomail.Dialer implements it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier sends notification emails through an SMTP server.
type SMTPNotifier struct {
	composer *Composer
	dialer   Dialer
	from     string
}

// NewSMTPDialer creates a gomail dialer for cfg.
func NewSMTPDialer(cfg SMTPConfig) *gomail.Dialer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.Secure
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return d
}

// NewSMTPNotifier creates an SMTPNotifier sending through dialer.
func NewSMTPNotifier(composer *Composer, dialer Dialer, cfg SMTPConfig) (*SMTPNotifier, error) {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	if from == "" {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("smtp sender address is required")
	}
	if dialer == nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("smtp dialer is required")
	}
	return &SMTPNotifier{composer: composer, dialer: dialer, from: from}, nil
}

// SendVerificationEmail emails the verification link to email.
func (n *SMTPNotifier) SendVerificationEmail(ctx context.Context, email, token string) error {
	return n.send(ctx, auth.NotificationVerification, email, token)
}

// SendPasswordResetEmail emails the password reset link to email.
func (n *SMTPNotifier) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	return n.send(ctx, auth.NotificationPasswordReset, email, token)
}

func (n *SMTPNotifier) send(ctx context.Context, kind, email, token string) error {
	msg, err := n.composer.Compose(kind, email, token)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	// gomail has no context support; run the send so the caller's deadline
	// still bounds how long we wait.
	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		if err != nil {
			return oops.Code("NOTIFY_SMTP_FAILED").With("kind", kind).Wrap(err)
		}
		return nil
	case <-ctx.Done():
		return oops.Code("NOTIFY_SMTP_FAILED").With("kind", kind).Wrap(ctx.Err())
	}
}

// Compile-time interface check.
var _ auth.Notifier = (*SMTPNotifier)(nil)
