// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package auth

import "context"

// Notification kinds.
const (
	NotificationVerification  = "verification"
	NotificationPasswordReset = "password_reset"
)

// Notifier delivers verification and reset links. A nil error means the
// message was handed to the transport, or logged when none is configured.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// Metrics receives auth events.
type Metrics interface {
	RecordOperation(operation, outcome string)
	RecordNotification(kind, status string)
	RecordSessionsSwept(n int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordOperation(string, string)    {}
func (noopMetrics) RecordNotification(string, string) {}
func (noopMetrics) RecordSessionsSwept(int64)         {}
