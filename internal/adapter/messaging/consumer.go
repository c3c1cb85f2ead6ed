package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/services"
)

// CapacityConsumer feeds freed-capacity events from the broker to a
// handler. It reconnects with backoff until its context is done.
type CapacityConsumer struct {
	url      string
	queue    string
	prefetch int
	handle   services.CapacityHandler
	log      *zap.SugaredLogger
}

func NewCapacityConsumer(url string, handle services.CapacityHandler, log *zap.SugaredLogger) *CapacityConsumer {
	return &CapacityConsumer{
		url:      url,
		queue:    CapacityFreedQueue,
		prefetch: 50,
		handle:   handle,
		log:      log,
	}
}

func (c *CapacityConsumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warnw("capacity consumer failed to dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			c.log.Info("capacity consumer stopped")
			return
		}
		c.log.Warnw("capacity consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *CapacityConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warnw("set qos failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.log.Infow("capacity consumer started", "queue", c.queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

// deliver acks handled events. Malformed bodies are dropped; handler
// failures are requeued once and dropped on redelivery.
func (c *CapacityConsumer) deliver(ctx context.Context, d amqp.Delivery) {
	var ev domain.CapacityFreed
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		c.log.Warnw("dropping malformed capacity event", "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := c.handle(ctx, ev); err != nil {
		c.log.Warnw("failed to handle freed capacity", "event_id", ev.EventID, "unit_id", ev.UnitID, "redelivered", d.Redelivered, "error", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
