// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

// Package notify delivers verification and password reset links.
//
// Three transports implement auth.Notifier: LogNotifier writes the link to
// the operator log when no transport is configured, SMTPNotifier sends the
// email directly, and QueueNotifier publishes a mail job to RabbitMQ for an
// external sender.
package notify
