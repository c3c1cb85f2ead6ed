package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports/mocks"
	"github.com/srgjo27/ticket_engine/internal/core/services"
)

func seatReq(session string, seats ...string) services.HoldSeatsRequest {
	return services.HoldSeatsRequest{EventID: "evt-1", SeatIDs: seats, SessionID: session, TTL: time.Minute}
}

func (h *harness) seatsFor(t *testing.T, section string, ids ...string) {
	t.Helper()
	_, err := h.seats.CreateSeats(context.Background(), "evt-1", section, ids)
	require.NoError(t, err)
}

func TestSeatService_HoldSeatsAllOrNothing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seatsFor(t, "A", "A1", "A2", "A3")

	held, err := h.seats.HoldSeats(ctx, seatReq("s1", "A1", "A2"))
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.ElementsMatch(t, []string{"A1", "A2"}, held[0].SeatIDs)

	_, err = h.seats.HoldSeats(ctx, seatReq("s2", "A3", "A2", "Z9"))
	var unavailable *domain.SeatsUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []string{"A2", "Z9"}, unavailable.Conflicts)
	assert.ErrorIs(t, err, domain.ErrSeatsUnavailable)

	assert.Equal(t, domain.SeatAvailable, h.seatStatus(t, "evt-1", "A3").Status)
	assert.Equal(t, held[0].ID, h.seatStatus(t, "evt-1", "A2").HoldID)
}

func TestSeatService_ConcurrentHoldsOnOneSeat(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seatsFor(t, "A", "A1")

	const callers = 50
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		unavailable int
		other       []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.seats.HoldSeats(ctx, seatReq(string(rune('a'+i%26))+string(rune('0'+i/26)), "A1"))
			mu.Lock()
			defer mu.Unlock()
			var conflict *domain.SeatsUnavailableError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &conflict):
				if assert.Equal(t, []string{"A1"}, conflict.Conflicts) {
					unavailable++
				}
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, unavailable)
}

func TestSeatService_SameSessionRefreshes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seatsFor(t, "A", "A1", "A2")

	first, err := h.seats.HoldSeats(ctx, seatReq("s1", "A1"))
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	again, err := h.seats.HoldSeats(ctx, seatReq("s1", "A1", "A2"))
	require.NoError(t, err)
	require.Len(t, again, 2)

	assert.Equal(t, []string{"A2"}, again[0].SeatIDs)
	assert.Equal(t, first[0].ID, again[1].ID)
	assert.True(t, again[1].ExpiresAt.Equal(h.clock.Now().Add(time.Minute)))
	assert.Equal(t, first[0].ID, h.seatStatus(t, "evt-1", "A1").HoldID)
}

func TestSeatService_ReleaseOnlyOwnedSeats(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seatsFor(t, "A", "A1")

	first, err := h.seats.HoldSeats(ctx, seatReq("s1", "A1"))
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)
	expired, err := h.seats.Expire(ctx, first[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldExpired, expired.Status)

	second, err := h.seats.HoldSeats(ctx, seatReq("s2", "A1"))
	require.NoError(t, err)

	_, err = h.seats.Release(ctx, first[0].ID)
	require.NoError(t, err)

	seat := h.seatStatus(t, "evt-1", "A1")
	assert.Equal(t, domain.SeatHeld, seat.Status)
	assert.Equal(t, second[0].ID, seat.HoldID)
}

func TestSeatService_ConvertAndRelease(t *testing.T) {
	events := mocks.NewCapacityEventPublisher(t)
	h := newHarness(t, events)
	ctx := context.Background()
	h.seatsFor(t, "A", "A1", "A2")
	h.seatsFor(t, "B", "B1")

	sold, err := h.seats.HoldSeats(ctx, seatReq("s1", "A1"))
	require.NoError(t, err)
	_, err = h.seats.ConvertToSale(ctx, sold[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeatSold, h.seatStatus(t, "evt-1", "A1").Status)

	released, err := h.seats.Release(ctx, sold[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldConverted, released.Status)
	assert.Equal(t, domain.SeatSold, h.seatStatus(t, "evt-1", "A1").Status)

	other, err := h.seats.HoldSeats(ctx, seatReq("s2", "A2", "B1"))
	require.NoError(t, err)
	events.On("PublishCapacityFreed", mock.Anything, domain.CapacityFreed{EventID: "evt-1", UnitID: "A", Quantity: 1}).Return(nil).Once()
	events.On("PublishCapacityFreed", mock.Anything, domain.CapacityFreed{EventID: "evt-1", UnitID: "B", Quantity: 1}).Return(nil).Once()
	_, err = h.seats.Release(ctx, other[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeatAvailable, h.seatStatus(t, "evt-1", "A2").Status)
	assert.Equal(t, domain.SeatAvailable, h.seatStatus(t, "evt-1", "B1").Status)

	n, err := h.seats.AvailableInUnit(ctx, "evt-1", "A")
	require.NoError(t, err)
	assert.Equal(t, uint(1), n)
}

func TestSeatService_ExpiryRacesConvertOnce(t *testing.T) {
	events := mocks.NewCapacityEventPublisher(t)
	h := newHarness(t, events)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		seatID := "R" + string(rune('a'+round))
		h.seatsFor(t, "R", seatID)
		held, err := h.seats.HoldSeats(ctx, seatReq("racer", seatID))
		require.NoError(t, err)
		require.Len(t, held, 1)
		hold := held[0]

		// Odd rounds land past expiry but inside the convert grace.
		inGrace := round%2 == 1
		if inGrace {
			h.clock.Advance(65 * time.Second)
		} else {
			h.clock.Advance(71 * time.Second)
			events.On("PublishCapacityFreed", mock.Anything, domain.CapacityFreed{EventID: "evt-1", UnitID: "R", Quantity: 1}).Return(nil).Once()
		}

		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					_, _ = h.seats.Expire(ctx, hold.ID)
				} else {
					_, _ = h.seats.ConvertToSale(ctx, hold.ID)
				}
			}(i)
		}
		wg.Wait()

		got, err := h.holds.Get(ctx, hold.ID)
		require.NoError(t, err)
		seat := h.seatStatus(t, "evt-1", seatID)
		if inGrace {
			require.Equal(t, domain.HoldConverted, got.Status, "round %d", round)
			require.Equal(t, domain.SeatSold, seat.Status, "round %d", round)
		} else {
			require.Equal(t, domain.HoldExpired, got.Status, "round %d", round)
			require.Equal(t, domain.SeatAvailable, seat.Status, "round %d", round)
		}
	}

	n, err := h.seats.AvailableInUnit(ctx, "evt-1", "R")
	require.NoError(t, err)
	assert.Equal(t, uint(10), n)
}

func TestSeatService_BlockUnblock(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seatsFor(t, "A", "A1", "A2", "A3")

	_, err := h.seats.HoldSeats(ctx, seatReq("s1", "A1"))
	require.NoError(t, err)

	err = h.seats.BlockSeats(ctx, "evt-1", []string{"A1", "A2"})
	var unavailable *domain.SeatsUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []string{"A1"}, unavailable.Conflicts)
	assert.Equal(t, domain.SeatAvailable, h.seatStatus(t, "evt-1", "A2").Status)

	require.NoError(t, h.seats.BlockSeats(ctx, "evt-1", []string{"A2", "A3"}))
	_, err = h.seats.HoldSeats(ctx, seatReq("s2", "A2"))
	assert.ErrorIs(t, err, domain.ErrSeatsUnavailable)

	require.NoError(t, h.seats.UnblockSeats(ctx, "evt-1", []string{"A2", "A3", "A1"}))
	assert.Equal(t, domain.SeatAvailable, h.seatStatus(t, "evt-1", "A3").Status)
	assert.Equal(t, domain.SeatHeld, h.seatStatus(t, "evt-1", "A1").Status)
}

func TestSeatService_SeatMap(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seatsFor(t, "A", "A1", "A2")

	_, err := h.seats.HoldSeats(ctx, seatReq("s1", "A2"))
	require.NoError(t, err)

	views, err := h.seats.SeatMap(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, []domain.SeatView{
		{SeatID: "A1", SectionID: "A", Status: domain.SeatAvailable},
		{SeatID: "A2", SectionID: "A", Status: domain.SeatHeld},
	}, views)
}
