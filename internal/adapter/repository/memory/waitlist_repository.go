package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type waitlistRecord struct {
	entry domain.WaitlistEntry
	seq   uint64
}

type WaitlistRepository struct {
	mu      sync.RWMutex
	entries map[string]waitlistRecord
	seq     uint64
}

func NewWaitlistRepository() *WaitlistRepository {
	return &WaitlistRepository{entries: make(map[string]waitlistRecord)}
}

func cloneWaitlist(e domain.WaitlistEntry) domain.WaitlistEntry {
	if e.NotifiedAt != nil {
		t := *e.NotifiedAt
		e.NotifiedAt = &t
	}
	if e.NotificationExpiresAt != nil {
		t := *e.NotificationExpiresAt
		e.NotificationExpiresAt = &t
	}
	return e
}

func (r *WaitlistRepository) Create(_ context.Context, entry *domain.WaitlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.seq++
	entry.Version = 1
	r.entries[entry.ID] = waitlistRecord{entry: cloneWaitlist(*entry), seq: r.seq}
	return nil
}

func (r *WaitlistRepository) GetByID(_ context.Context, entryID string) (*domain.WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.entries[entryID]
	if !ok {
		return nil, domain.ErrWaitlistEntryNotFound
	}
	e := cloneWaitlist(rec.entry)
	return &e, nil
}

// ListWaiting orders by JoinedAt and then by insertion, so entries that
// joined within the same instant keep their arrival order.
func (r *WaitlistRepository) ListWaiting(_ context.Context, eventID, unitID string, limit int) ([]domain.WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var recs []waitlistRecord
	for _, rec := range r.entries {
		e := rec.entry
		if e.EventID == eventID && e.UnitID == unitID && e.Status == domain.WaitlistWaiting {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].entry.JoinedAt.Equal(recs[j].entry.JoinedAt) {
			return recs[i].entry.JoinedAt.Before(recs[j].entry.JoinedAt)
		}
		return recs[i].seq < recs[j].seq
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]domain.WaitlistEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, cloneWaitlist(rec.entry))
	}
	return out, nil
}

func (r *WaitlistRepository) ListNotifiedExpired(_ context.Context, now time.Time, limit int) ([]domain.WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WaitlistEntry
	for _, rec := range r.entries {
		e := rec.entry
		if e.Status == domain.WaitlistNotified && e.NotificationExpiresAt != nil && now.After(*e.NotificationExpiresAt) {
			out = append(out, cloneWaitlist(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NotificationExpiresAt.Before(*out[j].NotificationExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *WaitlistRepository) Update(_ context.Context, entry *domain.WaitlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.entries[entry.ID]
	if !ok {
		return domain.ErrWaitlistEntryNotFound
	}
	if rec.entry.Version != entry.Version {
		return domain.ErrVersionConflict
	}
	entry.Version++
	rec.entry = cloneWaitlist(*entry)
	r.entries[entry.ID] = rec
	return nil
}
