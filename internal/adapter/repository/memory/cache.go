package memory

import (
	"context"
	"sync"
	"time"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/platform/clock"
)

type cached[T any] struct {
	value     T
	expiresAt time.Time
}

// AvailabilityCache is a per-instance ports.AvailabilityCache whose
// entries live at most ttl.
type AvailabilityCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	pools map[string]cached[domain.PoolAvailability]
	seats map[string]cached[[]domain.SeatView]
}

func NewAvailabilityCache(ttl time.Duration, c clock.Clock) *AvailabilityCache {
	if c == nil {
		c = clock.Real()
	}
	return &AvailabilityCache{
		ttl:   ttl,
		clock: c,
		pools: make(map[string]cached[domain.PoolAvailability]),
		seats: make(map[string]cached[[]domain.SeatView]),
	}
}

func (c *AvailabilityCache) GetPool(_ context.Context, poolID string) (*domain.PoolAvailability, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pools[poolID]
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		delete(c.pools, poolID)
		return nil, false
	}
	v := e.value
	return &v, true
}

func (c *AvailabilityCache) SetPool(_ context.Context, a domain.PoolAvailability) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pools[a.PoolID] = cached[domain.PoolAvailability]{value: a, expiresAt: c.clock.Now().Add(c.ttl)}
}

func (c *AvailabilityCache) InvalidatePool(_ context.Context, poolID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pools, poolID)
}

func (c *AvailabilityCache) GetSeatMap(_ context.Context, eventID string) ([]domain.SeatView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.seats[eventID]
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		delete(c.seats, eventID)
		return nil, false
	}
	return append([]domain.SeatView(nil), e.value...), true
}

func (c *AvailabilityCache) SetSeatMap(_ context.Context, eventID string, seats []domain.SeatView) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seats[eventID] = cached[[]domain.SeatView]{
		value:     append([]domain.SeatView(nil), seats...),
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

func (c *AvailabilityCache) InvalidateSeatMap(_ context.Context, eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seats, eventID)
}
