package ports

import (
	"context"
	"time"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

// Update methods are compare-and-set on Version: the write succeeds only
// when the stored version equals the given record's Version, after which
// the record's Version is incremented. A mismatch is domain.ErrVersionConflict.

type PoolRepository interface {
	Create(ctx context.Context, pool *domain.CapacityPool) error
	GetByID(ctx context.Context, poolID string) (*domain.CapacityPool, error)
	ListByEvent(ctx context.Context, eventID string) ([]domain.CapacityPool, error)
	Update(ctx context.Context, pool *domain.CapacityPool) error

	CreateBlock(ctx context.Context, block *domain.CapacityBlock) error
	GetBlock(ctx context.Context, blockID string) (*domain.CapacityBlock, error)
	UpdateBlock(ctx context.Context, block *domain.CapacityBlock) error
	RecordAdjustment(ctx context.Context, adj domain.CapacityAdjustment) error
}

type SeatRepository interface {
	CreateMany(ctx context.Context, seats []domain.SeatLock) error
	// GetMany returns the seats that exist; unknown ids are omitted.
	GetMany(ctx context.Context, eventID string, seatIDs []string) ([]domain.SeatLock, error)
	ListByEvent(ctx context.Context, eventID string) ([]domain.SeatLock, error)
	// UpdateMany applies every seat or none. On success the new versions
	// are written back into the slice elements.
	UpdateMany(ctx context.Context, seats []domain.SeatLock) error
}

type HoldRepository interface {
	Create(ctx context.Context, hold *domain.Hold) error
	GetByID(ctx context.Context, holdID string) (*domain.Hold, error)
	Update(ctx context.Context, hold *domain.Hold) error
	FindActiveBySessionPool(ctx context.Context, sessionID, poolID string) (*domain.Hold, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
}

type QueueRepository interface {
	Create(ctx context.Context, queue *domain.Queue) error
	GetByID(ctx context.Context, queueID string) (*domain.Queue, error)
	// GetByEvent returns the most recent queue for the event that is not completed.
	GetByEvent(ctx context.Context, eventID string) (*domain.Queue, error)
	ListOpen(ctx context.Context) ([]domain.Queue, error)
	Update(ctx context.Context, queue *domain.Queue) error
}

// StaleQuery selects entries the queue sweep should expire.
type StaleQuery struct {
	Now             time.Time
	IdleBefore      time.Time
	ChallengeBefore time.Time
	Limit           int
}

type QueueEntryRepository interface {
	Create(ctx context.Context, entry *domain.QueueEntry) error
	GetByID(ctx context.Context, entryID string) (*domain.QueueEntry, error)
	GetBySession(ctx context.Context, sessionID string) (*domain.QueueEntry, error)
	// FindOpenByFingerprint only matches entries of the same customer.
	FindOpenByFingerprint(ctx context.Context, queueID, customerID, fingerprintHash string) (*domain.QueueEntry, error)
	// NextEligible returns the lowest-position waiting entry whose EligibleAt <= now.
	NextEligible(ctx context.Context, queueID string, now time.Time) (*domain.QueueEntry, error)
	// CountAhead counts waiting and challenge entries with a lower position.
	CountAhead(ctx context.Context, queueID string, position uint64) (int, error)
	ListStale(ctx context.Context, q StaleQuery) ([]domain.QueueEntry, error)
	Update(ctx context.Context, entry *domain.QueueEntry) error
}

type WaitlistRepository interface {
	Create(ctx context.Context, entry *domain.WaitlistEntry) error
	GetByID(ctx context.Context, entryID string) (*domain.WaitlistEntry, error)
	// ListWaiting returns waiting entries of the event with exactly this
	// unit id, oldest first.
	ListWaiting(ctx context.Context, eventID, unitID string, limit int) ([]domain.WaitlistEntry, error)
	ListNotifiedExpired(ctx context.Context, now time.Time, limit int) ([]domain.WaitlistEntry, error)
	Update(ctx context.Context, entry *domain.WaitlistEntry) error
}
