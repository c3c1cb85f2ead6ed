// Package messaging carries customer notifications and freed-capacity
// events over RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

const (
	NotificationQueue  = "ticket.notifications"
	CapacityFreedQueue = "ticket.capacity_freed"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher is both a ports.Notifier and a ports.CapacityEventPublisher.
// One channel is shared and guarded by a mutex; amqp channels are not safe
// for concurrent publishing.
type Publisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   channel
	log  *zap.SugaredLogger
	now  func() time.Time
}

// Dial connects to the broker and declares both durable queues.
func Dial(url string, log *zap.SugaredLogger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newPublisher(ch, log)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, log *zap.SugaredLogger) (*Publisher, error) {
	for _, q := range []string{NotificationQueue, CapacityFreedQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	return &Publisher{ch: ch, log: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (p *Publisher) Notify(ctx context.Context, n domain.Notification) error {
	return p.publish(ctx, NotificationQueue, string(n.Kind), n)
}

func (p *Publisher) PublishCapacityFreed(ctx context.Context, ev domain.CapacityFreed) error {
	return p.publish(ctx, CapacityFreedQueue, "capacity.freed", ev)
}

func (p *Publisher) publish(ctx context.Context, queue, msgType string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         msgType,
		Timestamp:    p.now(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		p.log.Warnw("publish failed", "queue", queue, "type", msgType, "error", err)
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
