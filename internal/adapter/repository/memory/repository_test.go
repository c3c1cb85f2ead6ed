package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/ticket_engine/internal/adapter/repository/memory"
	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
)

var now = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func TestPoolRepository_CompareAndSet(t *testing.T) {
	repo := memory.NewPoolRepository()
	ctx := context.Background()

	p := &domain.CapacityPool{ID: "p1", EventID: "e1", UnitID: "ga", TotalCapacity: 10}
	require.NoError(t, repo.Create(ctx, p))
	assert.Equal(t, 1, p.Version)
	assert.ErrorIs(t, repo.Create(ctx, p), domain.ErrAlreadyExists)

	a, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	b, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)

	a.Held = 3
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, 2, a.Version)

	b.Held = 5
	assert.ErrorIs(t, repo.Update(ctx, b), domain.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, uint(3), stored.Held)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
}

func TestSeatRepository_UpdateManyIsAllOrNothing(t *testing.T) {
	repo := memory.NewSeatRepository()
	ctx := context.Background()

	seats := []domain.SeatLock{
		{EventID: "e1", SeatID: "A1", SectionID: "s", Status: domain.SeatAvailable},
		{EventID: "e1", SeatID: "A2", SectionID: "s", Status: domain.SeatAvailable},
	}
	require.NoError(t, repo.CreateMany(ctx, seats))

	got, err := repo.GetMany(ctx, "e1", []string{"A1", "A2", "Z9"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	stale := got[1]
	got[1].Status = domain.SeatHeld
	require.NoError(t, repo.UpdateMany(ctx, got[1:]))
	assert.Equal(t, 2, got[1].Version)

	got[0].Status = domain.SeatHeld
	stale.Status = domain.SeatSold
	err = repo.UpdateMany(ctx, []domain.SeatLock{got[0], stale})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	after, err := repo.GetMany(ctx, "e1", []string{"A1", "A2"})
	require.NoError(t, err)
	assert.Equal(t, domain.SeatAvailable, after[0].Status)
	assert.Equal(t, domain.SeatHeld, after[1].Status)
}

func TestHoldRepository_ListExpired(t *testing.T) {
	repo := memory.NewHoldRepository()
	ctx := context.Background()

	for i, h := range []domain.Hold{
		{ID: "h1", Kind: domain.HoldKindPool, PoolID: "p", SessionID: "s1", Status: domain.HoldActive, ExpiresAt: now.Add(-time.Minute)},
		{ID: "h2", Kind: domain.HoldKindPool, PoolID: "p", SessionID: "s2", Status: domain.HoldActive, ExpiresAt: now.Add(time.Minute)},
		{ID: "h3", Kind: domain.HoldKindPool, PoolID: "p", SessionID: "s3", Status: domain.HoldReleased, ExpiresAt: now.Add(-time.Hour)},
	} {
		h.CreatedAt = now.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, &h))
	}

	expired, err := repo.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "h1", expired[0].ID)

	active, err := repo.FindActiveBySessionPool(ctx, "s2", "p")
	require.NoError(t, err)
	assert.Equal(t, "h2", active.ID)
	_, err = repo.FindActiveBySessionPool(ctx, "s3", "p")
	assert.ErrorIs(t, err, domain.ErrHoldNotFound)
}

func TestQueueEntryRepository_Ordering(t *testing.T) {
	repo := memory.NewQueueEntryRepository()
	ctx := context.Background()

	entries := []domain.QueueEntry{
		{ID: "e3", QueueID: "q", Position: 3, Status: domain.EntryWaiting, EligibleAt: now, LastSeenAt: now},
		{ID: "e1", QueueID: "q", Position: 1, Status: domain.EntryWaiting, EligibleAt: now.Add(time.Minute), LastSeenAt: now},
		{ID: "e2", QueueID: "q", Position: 2, Status: domain.EntryChallenge, EligibleAt: now, LastSeenAt: now.Add(-time.Hour)},
		{ID: "x1", QueueID: "other", Position: 1, Status: domain.EntryWaiting, EligibleAt: now, LastSeenAt: now},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	next, err := repo.NextEligible(ctx, "q", now)
	require.NoError(t, err)
	assert.Equal(t, "e3", next.ID, "e1 is held back and e2 is in challenge")

	next, err = repo.NextEligible(ctx, "q", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "e1", next.ID)

	ahead, err := repo.CountAhead(ctx, "q", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, ahead)

	stale, err := repo.ListStale(ctx, ports.StaleQuery{
		Now:             now,
		IdleBefore:      now.Add(-15 * time.Minute),
		ChallengeBefore: now.Add(-2 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "e2", stale[0].ID)
}

func TestWaitlistRepository_OldestFirst(t *testing.T) {
	repo := memory.NewWaitlistRepository()
	ctx := context.Background()

	for _, id := range []string{"w1", "w2", "w3"} {
		require.NoError(t, repo.Create(ctx, &domain.WaitlistEntry{
			ID: id, EventID: "e1", UnitID: "a", CustomerID: id, Status: domain.WaitlistWaiting, JoinedAt: now,
		}))
	}

	got, err := repo.ListWaiting(ctx, "e1", "a", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "w1", got[0].ID)
	assert.Equal(t, "w2", got[1].ID)

	none, err := repo.ListWaiting(ctx, "e1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAvailabilityCache_ExpiresEntries(t *testing.T) {
	clk := &stepClock{t: now}
	cache := memory.NewAvailabilityCache(5*time.Second, clk)
	ctx := context.Background()

	cache.SetPool(ctx, domain.PoolAvailability{PoolID: "p1", Available: 4})
	got, ok := cache.GetPool(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, uint(4), got.Available)

	clk.t = now.Add(5 * time.Second)
	_, ok = cache.GetPool(ctx, "p1")
	assert.False(t, ok)

	cache.SetSeatMap(ctx, "e1", []domain.SeatView{{SeatID: "A1", Status: domain.SeatAvailable}})
	seats, ok := cache.GetSeatMap(ctx, "e1")
	require.True(t, ok)
	assert.Len(t, seats, 1)

	cache.InvalidateSeatMap(ctx, "e1")
	_, ok = cache.GetSeatMap(ctx, "e1")
	assert.False(t, ok)
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }
