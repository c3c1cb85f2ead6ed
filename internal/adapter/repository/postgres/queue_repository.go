package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
)

type QueueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

const queueColumns = `id, event_id, status, open_at, close_at, sale_start_at, concurrent_active_limit, active_count,
	last_position, challenge_required, avg_service_seconds, version, created_at, updated_at`

func scanQueue(row rowScanner) (*domain.Queue, error) {
	var (
		q       domain.Queue
		closeAt sql.NullTime
	)
	err := row.Scan(
		&q.ID,
		&q.EventID,
		&q.Status,
		&q.Schedule.OpenAt,
		&closeAt,
		&q.Schedule.SaleStartAt,
		&q.ConcurrentActiveLimit,
		&q.ActiveCount,
		&q.LastPosition,
		&q.ChallengeRequired,
		&q.AvgServiceSeconds,
		&q.Version,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.Schedule.CloseAt = timePtr(closeAt)
	return &q, nil
}

func (r *QueueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	query := `
	INSERT INTO queues (` + queueColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		queue.ID,
		queue.EventID,
		queue.Status,
		queue.Schedule.OpenAt,
		nullTime(queue.Schedule.CloseAt),
		queue.Schedule.SaleStartAt,
		queue.ConcurrentActiveLimit,
		queue.ActiveCount,
		queue.LastPosition,
		queue.ChallengeRequired,
		queue.AvgServiceSeconds,
		queue.CreatedAt,
		queue.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, domain.ErrQueueNotFound)
	}
	queue.Version = 1
	return nil
}

func (r *QueueRepository) GetByID(ctx context.Context, queueID string) (*domain.Queue, error) {
	q, err := scanQueue(r.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queues WHERE id = $1`, queueID))
	if err != nil {
		return nil, mapErr(err, domain.ErrQueueNotFound)
	}
	return q, nil
}

func (r *QueueRepository) GetByEvent(ctx context.Context, eventID string) (*domain.Queue, error) {
	query := `
	SELECT ` + queueColumns + `
	FROM queues
	WHERE event_id = $1 AND status <> 'completed'
	ORDER BY created_at DESC
	LIMIT 1
	`
	q, err := scanQueue(r.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		return nil, mapErr(err, domain.ErrQueueNotFound)
	}
	return q, nil
}

func (r *QueueRepository) ListOpen(ctx context.Context) ([]domain.Queue, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+queueColumns+` FROM queues WHERE status <> 'completed' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queues []domain.Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		queues = append(queues, *q)
	}
	return queues, rows.Err()
}

func (r *QueueRepository) Update(ctx context.Context, queue *domain.Queue) error {
	query := `
	UPDATE queues
	SET status = $1,
		concurrent_active_limit = $2,
		active_count = $3,
		last_position = $4,
		avg_service_seconds = $5,
		updated_at = $6,
		version = version + 1
	WHERE id = $7 AND version = $8
	`
	res, err := r.db.ExecContext(ctx, query,
		queue.Status, queue.ConcurrentActiveLimit, queue.ActiveCount, queue.LastPosition,
		queue.AvgServiceSeconds, queue.UpdatedAt, queue.ID, queue.Version)
	if err != nil {
		return fmt.Errorf("update queue %s: %w", queue.ID, err)
	}
	if err := checkCAS(ctx, r.db, res, "queues", queue.ID, domain.ErrQueueNotFound); err != nil {
		return err
	}
	queue.Version++
	return nil
}

type QueueEntryRepository struct {
	db *sql.DB
}

func NewQueueEntryRepository(db *sql.DB) *QueueEntryRepository {
	return &QueueEntryRepository{db: db}
}

const entryColumns = `id, queue_id, customer_id, session_id, fingerprint_hash, position, status, joined_at,
	last_seen_at, eligible_at, activated_at, expires_at, access_token, requeue_count, version`

func scanEntry(row rowScanner) (*domain.QueueEntry, error) {
	var (
		e           domain.QueueEntry
		activatedAt sql.NullTime
		expiresAt   sql.NullTime
	)
	err := row.Scan(
		&e.ID,
		&e.QueueID,
		&e.CustomerID,
		&e.SessionID,
		&e.FingerprintHash,
		&e.Position,
		&e.Status,
		&e.JoinedAt,
		&e.LastSeenAt,
		&e.EligibleAt,
		&activatedAt,
		&expiresAt,
		&e.AccessToken,
		&e.RequeueCount,
		&e.Version,
	)
	if err != nil {
		return nil, err
	}
	e.ActivatedAt = timePtr(activatedAt)
	e.ExpiresAt = timePtr(expiresAt)
	return &e, nil
}

func (r *QueueEntryRepository) Create(ctx context.Context, entry *domain.QueueEntry) error {
	query := `
	INSERT INTO queue_entries (` + entryColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.QueueID,
		entry.CustomerID,
		entry.SessionID,
		entry.FingerprintHash,
		entry.Position,
		entry.Status,
		entry.JoinedAt,
		entry.LastSeenAt,
		entry.EligibleAt,
		nullTime(entry.ActivatedAt),
		nullTime(entry.ExpiresAt),
		entry.AccessToken,
		entry.RequeueCount,
	)
	if err != nil {
		return mapErr(err, domain.ErrEntryNotFound)
	}
	entry.Version = 1
	return nil
}

func (r *QueueEntryRepository) get(ctx context.Context, where string, args ...any) (*domain.QueueEntry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE `+where, args...))
	if err != nil {
		return nil, mapErr(err, domain.ErrEntryNotFound)
	}
	return e, nil
}

func (r *QueueEntryRepository) GetByID(ctx context.Context, entryID string) (*domain.QueueEntry, error) {
	return r.get(ctx, `id = $1`, entryID)
}

func (r *QueueEntryRepository) GetBySession(ctx context.Context, sessionID string) (*domain.QueueEntry, error) {
	return r.get(ctx, `session_id = $1`, sessionID)
}

func (r *QueueEntryRepository) FindOpenByFingerprint(ctx context.Context, queueID, customerID, fingerprintHash string) (*domain.QueueEntry, error) {
	return r.get(ctx,
		`queue_id = $1 AND customer_id = $2 AND fingerprint_hash = $3 AND status IN ('waiting', 'challenge', 'active') LIMIT 1`,
		queueID, customerID, fingerprintHash)
}

func (r *QueueEntryRepository) NextEligible(ctx context.Context, queueID string, now time.Time) (*domain.QueueEntry, error) {
	return r.get(ctx,
		`queue_id = $1 AND status = 'waiting' AND eligible_at <= $2 ORDER BY position LIMIT 1`,
		queueID, now)
}

func (r *QueueEntryRepository) CountAhead(ctx context.Context, queueID string, position uint64) (int, error) {
	query := `
	SELECT COUNT(*)
	FROM queue_entries
	WHERE queue_id = $1 AND position < $2 AND status IN ('waiting', 'challenge')
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, queueID, position).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *QueueEntryRepository) ListStale(ctx context.Context, q ports.StaleQuery) ([]domain.QueueEntry, error) {
	query := `
	SELECT ` + entryColumns + `
	FROM queue_entries
	WHERE (status = 'active' AND expires_at <= $1)
		OR (status = 'waiting' AND last_seen_at < $2)
		OR (status = 'challenge' AND last_seen_at < $3)
	ORDER BY position
	LIMIT $4
	`
	rows, err := r.db.QueryContext(ctx, query, q.Now, q.IdleBefore, q.ChallengeBefore, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *QueueEntryRepository) Update(ctx context.Context, entry *domain.QueueEntry) error {
	query := `
	UPDATE queue_entries
	SET position = $1,
		status = $2,
		last_seen_at = $3,
		eligible_at = $4,
		activated_at = $5,
		expires_at = $6,
		access_token = $7,
		requeue_count = $8,
		version = version + 1
	WHERE id = $9 AND version = $10
	`
	res, err := r.db.ExecContext(ctx, query,
		entry.Position,
		entry.Status,
		entry.LastSeenAt,
		entry.EligibleAt,
		nullTime(entry.ActivatedAt),
		nullTime(entry.ExpiresAt),
		entry.AccessToken,
		entry.RequeueCount,
		entry.ID,
		entry.Version,
	)
	if err != nil {
		return fmt.Errorf("update queue entry %s: %w", entry.ID, err)
	}
	if err := checkCAS(ctx, r.db, res, "queue_entries", entry.ID, domain.ErrEntryNotFound); err != nil {
		return err
	}
	entry.Version++
	return nil
}
