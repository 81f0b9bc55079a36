// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/empaai/empaai/internal/auth"
)

// LogNotifier writes links to the operator log instead of sending email.
// It is the delivery path when no transport is configured and never fails
// for a known kind.
type LogNotifier struct {
	composer *Composer
	logger   *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(composer *Composer, logger *slog.Logger) *LogNotifier {
	return &LogNotifier{composer: composer, logger: logger}
}

// SendVerificationEmail logs the verification link for email.
func (n *LogNotifier) SendVerificationEmail(ctx context.Context, email, token string) error {
	return n.log(ctx, auth.NotificationVerification, email, token)
}

// SendPasswordResetEmail logs the password reset link for email.
func (n *LogNotifier) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	return n.log(ctx, auth.NotificationPasswordReset, email, token)
}

func (n *LogNotifier) log(ctx context.Context, kind, email, token string) error {
	link, err := n.composer.Link(kind, token)
	if err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "email transport not configured, logging link",
		"kind", kind,
		"email", email,
		"link", link,
	)
	return nil
}

// Compile-time interface check.
var _ auth.Notifier = (*LogNotifier)(nil)
