package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type SeatRepository struct {
	mu    sync.RWMutex
	seats map[string]domain.SeatLock
}

func NewSeatRepository() *SeatRepository {
	return &SeatRepository{seats: make(map[string]domain.SeatLock)}
}

func seatKey(eventID, seatID string) string { return eventID + "/" + seatID }

func (r *SeatRepository) CreateMany(_ context.Context, seats []domain.SeatLock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range seats {
		if _, ok := r.seats[seatKey(s.EventID, s.SeatID)]; ok {
			return domain.ErrAlreadyExists
		}
	}
	for i := range seats {
		seats[i].Version = 1
		r.seats[seatKey(seats[i].EventID, seats[i].SeatID)] = seats[i]
	}
	return nil
}

func (r *SeatRepository) GetMany(_ context.Context, eventID string, seatIDs []string) ([]domain.SeatLock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SeatLock, 0, len(seatIDs))
	for _, id := range seatIDs {
		if s, ok := r.seats[seatKey(eventID, id)]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *SeatRepository) ListByEvent(_ context.Context, eventID string) ([]domain.SeatLock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SeatLock
	for _, s := range r.seats {
		if s.EventID == eventID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
	return out, nil
}

func (r *SeatRepository) UpdateMany(_ context.Context, seats []domain.SeatLock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range seats {
		stored, ok := r.seats[seatKey(s.EventID, s.SeatID)]
		if !ok {
			return domain.ErrSeatNotFound
		}
		if stored.Version != s.Version {
			return domain.ErrVersionConflict
		}
	}
	for i := range seats {
		seats[i].Version++
		r.seats[seatKey(seats[i].EventID, seats[i].SeatID)] = seats[i]
	}
	return nil
}
