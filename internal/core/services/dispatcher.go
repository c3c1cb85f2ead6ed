package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

// CapacityHandler consumes freed-capacity events.
type CapacityHandler func(ctx context.Context, ev domain.CapacityFreed) error

// CapacityDispatcher is the in-process CapacityEventPublisher. Publishing
// never blocks the writer: events are buffered and handed to the handler
// by Run. A full buffer drops the event, which the waitlist sweep later
// reconciles against availability.
type CapacityDispatcher struct {
	events chan domain.CapacityFreed
	log    *zap.SugaredLogger
}

func NewCapacityDispatcher(buffer int, log *zap.SugaredLogger) *CapacityDispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &CapacityDispatcher{
		events: make(chan domain.CapacityFreed, buffer),
		log:    log,
	}
}

func (d *CapacityDispatcher) PublishCapacityFreed(_ context.Context, ev domain.CapacityFreed) error {
	select {
	case d.events <- ev:
	default:
		d.log.Warnw("capacity dispatcher full, dropping event", "event_id", ev.EventID, "unit_id", ev.UnitID, "quantity", ev.Quantity)
	}
	return nil
}

// Run feeds events to handle until ctx is done, then drains what is
// already buffered.
func (d *CapacityDispatcher) Run(ctx context.Context, handle CapacityHandler) {
	d.log.Info("capacity dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx), handle)
			d.log.Info("capacity dispatcher stopped")
			return
		case ev := <-d.events:
			d.deliver(ctx, handle, ev)
		}
	}
}

func (d *CapacityDispatcher) drain(ctx context.Context, handle CapacityHandler) {
	for {
		select {
		case ev := <-d.events:
			d.deliver(ctx, handle, ev)
		default:
			return
		}
	}
}

func (d *CapacityDispatcher) deliver(ctx context.Context, handle CapacityHandler, ev domain.CapacityFreed) {
	if err := handle(ctx, ev); err != nil {
		d.log.Warnw("failed to handle freed capacity", "event_id", ev.EventID, "unit_id", ev.UnitID, "error", err)
	}
}
