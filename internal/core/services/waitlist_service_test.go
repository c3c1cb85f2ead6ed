package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/ticket_engine/internal/adapter/repository/memory"
	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports/mocks"
	"github.com/srgjo27/ticket_engine/internal/core/services"
	"github.com/srgjo27/ticket_engine/internal/platform/clock"
	"github.com/srgjo27/ticket_engine/internal/platform/logger"
)

type availabilityFunc func(ctx context.Context, eventID, unitID string) (uint, error)

func (f availabilityFunc) AvailableInUnit(ctx context.Context, eventID, unitID string) (uint, error) {
	return f(ctx, eventID, unitID)
}

type waitlistFixture struct {
	clock    *clock.FakeClock
	store    *memory.Store
	notifier *mocks.Notifier
	svc      *services.WaitlistService
}

func newWaitlistFixture(t *testing.T, opts ...services.WaitlistOption) *waitlistFixture {
	t.Helper()
	clk := clock.NewFake(start)
	store := memory.NewStore()
	notifier := mocks.NewNotifier(t)
	opts = append([]services.WaitlistOption{services.WithNotifyTTL(30 * time.Minute)}, opts...)
	return &waitlistFixture{
		clock:    clk,
		store:    store,
		notifier: notifier,
		svc:      services.NewWaitlistService(store.Waitlists, notifier, newRuntime(clk), opts...),
	}
}

func (f *waitlistFixture) add(t *testing.T, unitID, customerID string) *domain.WaitlistEntry {
	t.Helper()
	e, err := f.svc.Add(context.Background(), "evt-1", unitID, customerID)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return e
}

func offerTo(customerID string) interface{} {
	return mock.MatchedBy(func(n domain.Notification) bool {
		return n.Kind == domain.NotifyWaitlistOffer && n.CustomerID == customerID
	})
}

func TestWaitlistService_OffersExactUnitBeforeAnyUnit(t *testing.T) {
	f := newWaitlistFixture(t)
	ctx := context.Background()

	anyUnit := f.add(t, "", "c-any")
	other := f.add(t, "sec-b", "c-other")
	first := f.add(t, "sec-a", "c-first")
	second := f.add(t, "sec-a", "c-second")

	f.notifier.On("Notify", mock.Anything, offerTo("c-first")).Return(nil).Once()
	f.notifier.On("Notify", mock.Anything, offerTo("c-second")).Return(nil).Once()
	f.notifier.On("Notify", mock.Anything, offerTo("c-any")).Return(nil).Once()

	notified, err := f.svc.NotifyOnFreedCapacity(ctx, "evt-1", "sec-a", 3)
	require.NoError(t, err)
	require.Len(t, notified, 3)
	assert.Equal(t, first.ID, notified[0].ID)
	assert.Equal(t, second.ID, notified[1].ID)
	assert.Equal(t, anyUnit.ID, notified[2].ID)

	got, err := f.svc.Get(ctx, anyUnit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistNotified, got.Status)
	assert.Equal(t, "sec-a", got.OfferUnitID)
	assert.Equal(t, start.Add(4*time.Second+30*time.Minute), *got.NotificationExpiresAt)

	got, err = f.svc.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistWaiting, got.Status)
}

func TestWaitlistService_NotifierFailureKeepsOffer(t *testing.T) {
	f := newWaitlistFixture(t)
	ctx := context.Background()
	e := f.add(t, "sec-a", "c1")

	f.notifier.On("Notify", mock.Anything, offerTo("c1")).Return(assert.AnError).Once()

	notified, err := f.svc.NotifyOnFreedCapacity(ctx, "evt-1", "sec-a", 1)
	require.NoError(t, err)
	require.Len(t, notified, 1)

	got, err := f.svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistNotified, got.Status)
}

func TestWaitlistService_ExpiredOffersAreReoffered(t *testing.T) {
	var available uint = 1
	f := newWaitlistFixture(t, services.WithUnitAvailability(availabilityFunc(func(_ context.Context, eventID, unitID string) (uint, error) {
		assert.Equal(t, "evt-1", eventID)
		assert.Equal(t, "sec-a", unitID)
		return available, nil
	})))
	ctx := context.Background()

	a := f.add(t, "sec-a", "c-a")
	b := f.add(t, "sec-a", "c-b")
	c := f.add(t, "sec-a", "c-c")
	d := f.add(t, "sec-a", "c-d")

	f.notifier.On("Notify", mock.Anything, offerTo("c-a")).Return(nil).Once()
	f.notifier.On("Notify", mock.Anything, offerTo("c-b")).Return(nil).Once()
	_, err := f.svc.NotifyOnFreedCapacity(ctx, "evt-1", "sec-a", 2)
	require.NoError(t, err)

	freed, err := f.svc.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, freed, "offers are still open")

	f.clock.Advance(31 * time.Minute)
	freed, err = f.svc.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.CapacityFreed{{EventID: "evt-1", UnitID: "sec-a", Quantity: 2}}, freed)

	for _, e := range []*domain.WaitlistEntry{a, b} {
		got, err := f.svc.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.WaitlistExpired, got.Status)
	}

	f.notifier.On("Notify", mock.Anything, offerTo("c-c")).Return(nil).Once()
	assert.Equal(t, 1, f.svc.Reoffer(ctx, freed), "bounded by what is still available")

	got, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistNotified, got.Status)
	got, err = f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistWaiting, got.Status)

	available = 0
	assert.Zero(t, f.svc.Reoffer(ctx, freed))
}

func TestWaitlistService_PurchaseAndCancel(t *testing.T) {
	f := newWaitlistFixture(t)
	ctx := context.Background()

	buyer := f.add(t, "sec-a", "c-buyer")
	quitter := f.add(t, "sec-a", "c-quitter")
	next := f.add(t, "sec-a", "c-next")
	idle := f.add(t, "sec-a", "c-idle")

	_, err := f.svc.MarkPurchased(ctx, buyer.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "no offer yet")

	f.notifier.On("Notify", mock.Anything, offerTo("c-buyer")).Return(nil).Once()
	f.notifier.On("Notify", mock.Anything, offerTo("c-quitter")).Return(nil).Once()
	_, err = f.svc.NotifyOnFreedCapacity(ctx, "evt-1", "sec-a", 2)
	require.NoError(t, err)

	bought, err := f.svc.MarkPurchased(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistPurchased, bought.Status)
	_, err = f.svc.MarkPurchased(ctx, buyer.ID)
	assert.NoError(t, err)

	f.notifier.On("Notify", mock.Anything, offerTo("c-next")).Return(nil).Once()
	cancelled, err := f.svc.Cancel(ctx, quitter.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistCancelled, cancelled.Status)

	got, err := f.svc.Get(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistNotified, got.Status, "cancelled offer passes on")

	again, err := f.svc.Cancel(ctx, quitter.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistCancelled, again.Status)

	_, err = f.svc.Cancel(ctx, idle.ID)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, buyer.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	f.clock.Advance(31 * time.Minute)
	_, err = f.svc.MarkPurchased(ctx, next.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestWaitlistService_Validation(t *testing.T) {
	f := newWaitlistFixture(t)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, "", "sec-a", "c1")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = f.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrWaitlistEntryNotFound)

	notified, err := f.svc.NotifyOnFreedCapacity(ctx, "evt-1", "sec-a", 0)
	require.NoError(t, err)
	assert.Empty(t, notified)
}

// recordingNotifier collects notifications for tests that run the
// dispatcher asynchronously.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) customers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.CustomerID)
	}
	return out
}

func TestCapacityDispatcher_ReleaseNotifiesWaitlist(t *testing.T) {
	dispatcher := services.NewCapacityDispatcher(8, logger.Nop())
	h := newHarness(t, dispatcher)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := &recordingNotifier{}
	waitlist := services.NewWaitlistService(h.store.Waitlists, notifier, h.rt,
		services.WithUnitAvailability(h.holds))

	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(ctx, waitlist.HandleCapacityFreed)
	}()

	p := h.pool(t, "evt-1", "ga", 2)
	hold, err := h.capacity.Hold(ctx, services.HoldPoolRequest{PoolID: p.ID, Quantity: 2, SessionID: "s1", TTL: time.Minute})
	require.NoError(t, err)

	_, err = waitlist.Add(ctx, "evt-1", "ga", "c-ga")
	require.NoError(t, err)
	_, err = waitlist.Add(ctx, "evt-1", "", "c-any")
	require.NoError(t, err)

	_, err = h.capacity.Release(ctx, hold.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(notifier.customers()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"c-ga", "c-any"}, notifier.customers())

	cancel()
	<-done
}

func TestCapacityDispatcher_DropsWhenFull(t *testing.T) {
	dispatcher := services.NewCapacityDispatcher(1, logger.Nop())
	ctx := context.Background()

	require.NoError(t, dispatcher.PublishCapacityFreed(ctx, domain.CapacityFreed{EventID: "evt-1", UnitID: "a", Quantity: 1}))
	require.NoError(t, dispatcher.PublishCapacityFreed(ctx, domain.CapacityFreed{EventID: "evt-1", UnitID: "b", Quantity: 1}))

	var got []domain.CapacityFreed
	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	dispatcher.Run(runCtx, func(_ context.Context, ev domain.CapacityFreed) error {
		got = append(got, ev)
		return nil
	})
	assert.Equal(t, []domain.CapacityFreed{{EventID: "evt-1", UnitID: "a", Quantity: 1}}, got)
}
