package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type HoldRepository struct {
	mu    sync.RWMutex
	holds map[string]domain.Hold
}

func NewHoldRepository() *HoldRepository {
	return &HoldRepository{holds: make(map[string]domain.Hold)}
}

func cloneHold(h domain.Hold) domain.Hold {
	h.SeatIDs = append([]string(nil), h.SeatIDs...)
	if h.ClosedAt != nil {
		t := *h.ClosedAt
		h.ClosedAt = &t
	}
	return h
}

func (r *HoldRepository) Create(_ context.Context, hold *domain.Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.holds[hold.ID]; ok {
		return domain.ErrAlreadyExists
	}
	hold.Version = 1
	r.holds[hold.ID] = cloneHold(*hold)
	return nil
}

func (r *HoldRepository) GetByID(_ context.Context, holdID string) (*domain.Hold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.holds[holdID]
	if !ok {
		return nil, domain.ErrHoldNotFound
	}
	h = cloneHold(h)
	return &h, nil
}

func (r *HoldRepository) Update(_ context.Context, hold *domain.Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.holds[hold.ID]
	if !ok {
		return domain.ErrHoldNotFound
	}
	if stored.Version != hold.Version {
		return domain.ErrVersionConflict
	}
	hold.Version++
	r.holds[hold.ID] = cloneHold(*hold)
	return nil
}

func (r *HoldRepository) FindActiveBySessionPool(_ context.Context, sessionID, poolID string) (*domain.Hold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.holds {
		if h.Kind == domain.HoldKindPool && h.IsActive() && h.SessionID == sessionID && h.PoolID == poolID {
			h = cloneHold(h)
			return &h, nil
		}
	}
	return nil, domain.ErrHoldNotFound
}

func (r *HoldRepository) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Hold
	for _, h := range r.holds {
		if h.IsActive() && h.ExpiredAt(now) {
			out = append(out, cloneHold(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
