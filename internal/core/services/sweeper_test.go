package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/services"
	"github.com/srgjo27/ticket_engine/internal/platform/logger"
)

func TestSweeper_ReclaimsAbandonedInventory(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	admission := newAdmission(t, h.clock, h.store, services.AdmissionConfig{SessionTTL: time.Minute})
	waitlist := services.NewWaitlistService(h.store.Waitlists, notifier, h.rt,
		services.WithNotifyTTL(time.Minute),
		services.WithUnitAvailability(h.holds))
	sweeper := services.NewSweeper(h.holds, admission, waitlist, services.SweepIntervals{}, logger.Nop())

	p := h.pool(t, "evt-1", "ga", 1)
	_, err := h.capacity.Hold(ctx, services.HoldPoolRequest{PoolID: p.ID, Quantity: 1, SessionID: "s1", TTL: time.Minute})
	require.NoError(t, err)

	q, err := admission.CreateQueue(ctx, services.CreateQueueRequest{
		EventID:  "evt-1",
		Schedule: domain.Schedule{OpenAt: start, SaleStartAt: start},
		Limit:    1,
	})
	require.NoError(t, err)
	first, err := admission.Join(ctx, services.JoinRequest{QueueID: q.ID, CustomerID: "c1"})
	require.NoError(t, err)
	second, err := admission.Join(ctx, services.JoinRequest{QueueID: q.ID, CustomerID: "c2"})
	require.NoError(t, err)
	assert.Equal(t, 1, sweeper.TickQueues(ctx).Activated)

	w, err := waitlist.Add(ctx, "evt-1", "ga", "c-wait")
	require.NoError(t, err)
	_, err = waitlist.Add(ctx, "evt-1", "ga", "c-next")
	require.NoError(t, err)
	_, err = waitlist.NotifyOnFreedCapacity(ctx, "evt-1", "ga", 1)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)

	holds := sweeper.SweepHolds(ctx)
	assert.Equal(t, 1, holds.Expired)
	assert.Equal(t, uint(0), h.poolState(t, p.ID).Held)

	queues := sweeper.SweepQueues(ctx)
	assert.Equal(t, 1, queues.Expired)
	assert.Equal(t, 1, queues.Activated)
	got, err := admission.GetEntry(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryExpired, got.Status)
	got, err = admission.GetEntry(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryActive, got.Status)

	expired, reoffered := sweeper.SweepWaitlist(ctx)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, reoffered)
	stale, err := waitlist.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistExpired, stale.Status)
	assert.Equal(t, []string{"c-wait", "c-next"}, notifier.customers())
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	admission := newAdmission(t, h.clock, h.store, services.AdmissionConfig{})
	waitlist := services.NewWaitlistService(h.store.Waitlists, &recordingNotifier{}, h.rt)
	sweeper := services.NewSweeper(h.holds, admission, waitlist, services.SweepIntervals{
		Holds:  time.Millisecond,
		Queues: time.Millisecond,
		Tick:   time.Millisecond,
	}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
