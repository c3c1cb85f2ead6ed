package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

func TestReservationError_UnwrapsEachCause(t *testing.T) {
	err := error(&domain.ReservationError{Failures: []domain.ItemFailure{
		{Item: domain.ReserveItem{PoolID: "p1", Quantity: 2}, Reason: "pool gone", Err: fmt.Errorf("reserve: %w", domain.ErrPoolNotFound)},
		{Item: domain.ReserveItem{EventID: "e1", SeatID: "A1"}, Reason: "taken", Conflicts: []string{"A1"}, Err: domain.ErrSeatsUnavailable},
	}})

	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
	assert.ErrorIs(t, err, domain.ErrSeatsUnavailable)
	assert.False(t, errors.Is(err, domain.ErrInsufficientCapacity), "a failure is never reported as a cause it does not carry")
	assert.Contains(t, err.Error(), "pool p1 x2: pool gone")
}

func TestReservationError_NoCauses(t *testing.T) {
	err := error(&domain.ReservationError{Failures: []domain.ItemFailure{
		{Item: domain.ReserveItem{PoolID: "p1", Quantity: 1}, Reason: "unknown"},
	}})

	assert.False(t, errors.Is(err, domain.ErrInsufficientCapacity))
	assert.False(t, errors.Is(err, domain.ErrSeatsUnavailable))

	var re *domain.ReservationError
	assert.ErrorAs(t, err, &re)
}
