package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
)

type QueueRepository struct {
	mu     sync.RWMutex
	queues map[string]domain.Queue
}

func NewQueueRepository() *QueueRepository {
	return &QueueRepository{queues: make(map[string]domain.Queue)}
}

func cloneQueue(q domain.Queue) domain.Queue {
	if q.Schedule.CloseAt != nil {
		t := *q.Schedule.CloseAt
		q.Schedule.CloseAt = &t
	}
	return q
}

func (r *QueueRepository) Create(_ context.Context, queue *domain.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[queue.ID]; ok {
		return domain.ErrAlreadyExists
	}
	queue.Version = 1
	r.queues[queue.ID] = cloneQueue(*queue)
	return nil
}

func (r *QueueRepository) GetByID(_ context.Context, queueID string) (*domain.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[queueID]
	if !ok {
		return nil, domain.ErrQueueNotFound
	}
	q = cloneQueue(q)
	return &q, nil
}

func (r *QueueRepository) GetByEvent(_ context.Context, eventID string) (*domain.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.Queue
	for _, q := range r.queues {
		if q.EventID != eventID || q.Status == domain.QueueCompleted {
			continue
		}
		if found == nil || q.CreatedAt.After(found.CreatedAt) {
			c := cloneQueue(q)
			found = &c
		}
	}
	if found == nil {
		return nil, domain.ErrQueueNotFound
	}
	return found, nil
}

func (r *QueueRepository) ListOpen(_ context.Context) ([]domain.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Queue
	for _, q := range r.queues {
		if q.Status != domain.QueueCompleted {
			out = append(out, cloneQueue(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *QueueRepository) Update(_ context.Context, queue *domain.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.queues[queue.ID]
	if !ok {
		return domain.ErrQueueNotFound
	}
	if stored.Version != queue.Version {
		return domain.ErrVersionConflict
	}
	queue.Version++
	r.queues[queue.ID] = cloneQueue(*queue)
	return nil
}

type QueueEntryRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.QueueEntry
}

func NewQueueEntryRepository() *QueueEntryRepository {
	return &QueueEntryRepository{entries: make(map[string]domain.QueueEntry)}
}

func cloneEntry(e domain.QueueEntry) domain.QueueEntry {
	if e.ActivatedAt != nil {
		t := *e.ActivatedAt
		e.ActivatedAt = &t
	}
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		e.ExpiresAt = &t
	}
	return e
}

func (r *QueueEntryRepository) Create(_ context.Context, entry *domain.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.ID]; ok {
		return domain.ErrAlreadyExists
	}
	entry.Version = 1
	r.entries[entry.ID] = cloneEntry(*entry)
	return nil
}

func (r *QueueEntryRepository) GetByID(_ context.Context, entryID string) (*domain.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[entryID]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	e = cloneEntry(e)
	return &e, nil
}

func (r *QueueEntryRepository) GetBySession(_ context.Context, sessionID string) (*domain.QueueEntry, error) {
	return r.find(func(e domain.QueueEntry) bool { return e.SessionID == sessionID })
}

func (r *QueueEntryRepository) FindOpenByFingerprint(_ context.Context, queueID, customerID, fingerprintHash string) (*domain.QueueEntry, error) {
	return r.find(func(e domain.QueueEntry) bool {
		return e.QueueID == queueID && e.CustomerID == customerID && e.FingerprintHash == fingerprintHash && !e.IsTerminal()
	})
}

func (r *QueueEntryRepository) find(match func(domain.QueueEntry) bool) (*domain.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if match(e) {
			e = cloneEntry(e)
			return &e, nil
		}
	}
	return nil, domain.ErrEntryNotFound
}

func (r *QueueEntryRepository) NextEligible(_ context.Context, queueID string, now time.Time) (*domain.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var next *domain.QueueEntry
	for _, e := range r.entries {
		if e.QueueID != queueID || !e.Eligible(now) {
			continue
		}
		if next == nil || e.Position < next.Position {
			c := cloneEntry(e)
			next = &c
		}
	}
	if next == nil {
		return nil, domain.ErrEntryNotFound
	}
	return next, nil
}

func (r *QueueEntryRepository) CountAhead(_ context.Context, queueID string, position uint64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.QueueID != queueID || e.Position >= position {
			continue
		}
		if e.Status == domain.EntryWaiting || e.Status == domain.EntryChallenge {
			n++
		}
	}
	return n, nil
}

func (r *QueueEntryRepository) ListStale(_ context.Context, q ports.StaleQuery) ([]domain.QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.QueueEntry
	for _, e := range r.entries {
		stale := false
		switch e.Status {
		case domain.EntryActive:
			stale = e.ExpiresAt != nil && !q.Now.Before(*e.ExpiresAt)
		case domain.EntryWaiting:
			stale = e.LastSeenAt.Before(q.IdleBefore)
		case domain.EntryChallenge:
			stale = e.LastSeenAt.Before(q.ChallengeBefore)
		}
		if stale {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *QueueEntryRepository) Update(_ context.Context, entry *domain.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.entries[entry.ID]
	if !ok {
		return domain.ErrEntryNotFound
	}
	if stored.Version != entry.Version {
		return domain.ErrVersionConflict
	}
	entry.Version++
	r.entries[entry.ID] = cloneEntry(*entry)
	return nil
}
