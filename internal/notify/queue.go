// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	"github.com/empaai/empaai/internal/auth"
)

// Publisher publishes AMQP messages. *amqp.Channel implements it.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueNotifier publishes rendered messages as JSON mail jobs.
type QueueNotifier struct {
	composer  *Composer
	publisher Publisher
	queue     string
	now       func() time.Time
}

// NewQueueNotifier creates a QueueNotifier publishing to queue on the
// default exchange.
func NewQueueNotifier(composer *Composer, publisher Publisher, queue string) *QueueNotifier {
	return &QueueNotifier{composer: composer, publisher: publisher, queue: queue, now: time.Now}
}

// SendVerificationEmail enqueues the verification email.
func (n *QueueNotifier) SendVerificationEmail(ctx context.Context, email, token string) error {
	return n.publish(ctx, auth.NotificationVerification, email, token)
}

// SendPasswordResetEmail enqueues the password reset email.
func (n *QueueNotifier) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	return n.publish(ctx, auth.NotificationPasswordReset, email, token)
}

func (n *QueueNotifier) publish(ctx context.Context, kind, email, token string) error {
	msg, err := n.composer.Compose(kind, email, token)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return oops.Code("NOTIFY_QUEUE_FAILED").With("operation", "marshal job").Wrap(err)
	}

	err = n.publisher.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Type:         kind,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.now(),
	})
	if err != nil {
		return oops.Code("NOTIFY_QUEUE_FAILED").
			With("operation", "publish job").
			With("queue", n.queue).
			Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.Notifier = (*QueueNotifier)(nil)

// AMQPChannel owns a connection and a channel with a declared durable queue.
type AMQPChannel struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string) (*AMQPChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, oops.Code("NOTIFY_AMQP_CONNECT_FAILED").With("operation", "dial").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_AMQP_CONNECT_FAILED").With("operation", "open channel").Wrap(err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_AMQP_CONNECT_FAILED").
			With("operation", "declare queue").
			With("queue", queue).
			Wrap(err)
	}
	return &AMQPChannel{conn: conn, channel: ch, queue: queue}, nil
}

// Channel returns the publishing channel.
func (c *AMQPChannel) Channel() *amqp.Channel {
	return c.channel
}

// Queue returns the declared queue name.
func (c *AMQPChannel) Queue() string {
	return c.queue
}

// Close closes the channel and the connection.
func (c *AMQPChannel) Close() error {
	chErr := c.channel.Close()
	connErr := c.conn.Close()
	if chErr != nil {
		return oops.Code("NOTIFY_AMQP_CLOSE_FAILED").Wrap(chErr)
	}
	if connErr != nil {
		return oops.Code("NOTIFY_AMQP_CLOSE_FAILED").Wrap(connErr)
	}
	return nil
}
