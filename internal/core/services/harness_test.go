package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srgjo27/ticket_engine/internal/adapter/repository/memory"
	"github.com/srgjo27/ticket_engine/internal/adapter/token"
	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
	"github.com/srgjo27/ticket_engine/internal/core/services"
	"github.com/srgjo27/ticket_engine/internal/platform/clock"
	"github.com/srgjo27/ticket_engine/internal/platform/logger"
)

var start = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

type harness struct {
	clock    *clock.FakeClock
	store    *memory.Store
	rt       services.Runtime
	capacity *services.CapacityService
	seats    *services.SeatService
	holds    *services.HoldManager
}

func newRuntime(c clock.Clock) services.Runtime {
	return services.Runtime{
		Clock:  c,
		Locker: memory.NewLocker(2 * time.Second),
		Retry:  services.RetryPolicy{Attempts: 4, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Log:    logger.Nop(),
	}
}

func newHarness(t *testing.T, events ports.CapacityEventPublisher) *harness {
	t.Helper()
	clk := clock.NewFake(start)
	store := memory.NewStore()
	rt := newRuntime(clk)

	capacity := services.NewCapacityService(store.Pools, store.Holds, rt,
		services.WithCapacityEvents(events),
		services.WithConvertGrace(10*time.Second),
	)
	seats := services.NewSeatService(store.Seats, store.Holds, rt,
		services.WithSeatEvents(events),
		services.WithSeatConvertGrace(10*time.Second),
	)
	holds := services.NewHoldManager(capacity, seats, store.Holds, rt,
		services.WithHoldTTL(10*time.Minute, 30*time.Minute),
	)
	return &harness{clock: clk, store: store, rt: rt, capacity: capacity, seats: seats, holds: holds}
}

func (h *harness) pool(t *testing.T, eventID, unitID string, capacity uint) *domain.CapacityPool {
	t.Helper()
	p, err := h.capacity.CreatePool(context.Background(), eventID, unitID, capacity)
	require.NoError(t, err)
	return p
}

func (h *harness) poolState(t *testing.T, poolID string) *domain.CapacityPool {
	t.Helper()
	p, err := h.store.Pools.GetByID(context.Background(), poolID)
	require.NoError(t, err)
	return p
}

func (h *harness) seatStatus(t *testing.T, eventID, seatID string) domain.SeatLock {
	t.Helper()
	seats, err := h.store.Seats.GetMany(context.Background(), eventID, []string{seatID})
	require.NoError(t, err)
	require.Len(t, seats, 1)
	return seats[0]
}

func newAdmission(t *testing.T, clk *clock.FakeClock, store *memory.Store, cfg services.AdmissionConfig, opts ...services.AdmissionOption) *services.AdmissionService {
	t.Helper()
	issuer, err := token.NewJWTIssuer("test-secret", clk)
	require.NoError(t, err)
	return services.NewAdmissionService(store.Queues, store.Entries, issuer, newRuntime(clk), cfg, opts...)
}
