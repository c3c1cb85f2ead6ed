package ports

import (
	"context"
	"time"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

// Locker grants exclusive access to entity keys. Acquire takes every key
// or none; a key held elsewhere yields domain.ErrLockBusy. The returned
// release func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

// Notifier is the fire-and-forget channel for customer alerts.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type CapacityEventPublisher interface {
	PublishCapacityFreed(ctx context.Context, ev domain.CapacityFreed) error
}

// AvailabilityCache holds read-side availability with a bounded TTL.
// Writers invalidate after every mutation.
type AvailabilityCache interface {
	GetPool(ctx context.Context, poolID string) (*domain.PoolAvailability, bool)
	SetPool(ctx context.Context, a domain.PoolAvailability)
	InvalidatePool(ctx context.Context, poolID string)
	GetSeatMap(ctx context.Context, eventID string) ([]domain.SeatView, bool)
	SetSeatMap(ctx context.Context, eventID string, seats []domain.SeatView)
	InvalidateSeatMap(ctx context.Context, eventID string)
}

type AccessClaims struct {
	EntryID   string
	QueueID   string
	SessionID string
	ExpiresAt time.Time
}

type TokenIssuer interface {
	Issue(claims AccessClaims) (string, error)
	Verify(token string) (*AccessClaims, error)
}
