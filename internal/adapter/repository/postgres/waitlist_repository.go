package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type WaitlistRepository struct {
	db *sql.DB
}

func NewWaitlistRepository(db *sql.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

const waitlistColumns = `id, event_id, unit_id, customer_id, offer_unit_id, status, joined_at, notified_at, notification_expires_at, version`

func scanWaitlist(row rowScanner) (*domain.WaitlistEntry, error) {
	var (
		e          domain.WaitlistEntry
		notifiedAt sql.NullTime
		expiresAt  sql.NullTime
	)
	err := row.Scan(
		&e.ID,
		&e.EventID,
		&e.UnitID,
		&e.CustomerID,
		&e.OfferUnitID,
		&e.Status,
		&e.JoinedAt,
		&notifiedAt,
		&expiresAt,
		&e.Version,
	)
	if err != nil {
		return nil, err
	}
	e.NotifiedAt = timePtr(notifiedAt)
	e.NotificationExpiresAt = timePtr(expiresAt)
	return &e, nil
}

func (r *WaitlistRepository) list(ctx context.Context, query string, args ...any) ([]domain.WaitlistEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlist(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *WaitlistRepository) Create(ctx context.Context, entry *domain.WaitlistEntry) error {
	query := `
	INSERT INTO waitlist_entries (` + waitlistColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.EventID,
		entry.UnitID,
		entry.CustomerID,
		entry.OfferUnitID,
		entry.Status,
		entry.JoinedAt,
		nullTime(entry.NotifiedAt),
		nullTime(entry.NotificationExpiresAt),
	)
	if err != nil {
		return mapErr(err, domain.ErrWaitlistEntryNotFound)
	}
	entry.Version = 1
	return nil
}

func (r *WaitlistRepository) GetByID(ctx context.Context, entryID string) (*domain.WaitlistEntry, error) {
	e, err := scanWaitlist(r.db.QueryRowContext(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = $1`, entryID))
	if err != nil {
		return nil, mapErr(err, domain.ErrWaitlistEntryNotFound)
	}
	return e, nil
}

func (r *WaitlistRepository) ListWaiting(ctx context.Context, eventID, unitID string, limit int) ([]domain.WaitlistEntry, error) {
	query := `
	SELECT ` + waitlistColumns + `
	FROM waitlist_entries
	WHERE event_id = $1 AND unit_id = $2 AND status = 'waiting'
	ORDER BY joined_at, seq
	LIMIT $3
	`
	return r.list(ctx, query, eventID, unitID, limit)
}

func (r *WaitlistRepository) ListNotifiedExpired(ctx context.Context, now time.Time, limit int) ([]domain.WaitlistEntry, error) {
	query := `
	SELECT ` + waitlistColumns + `
	FROM waitlist_entries
	WHERE status = 'notified' AND notification_expires_at < $1
	ORDER BY notification_expires_at
	LIMIT $2
	`
	return r.list(ctx, query, now, limit)
}

func (r *WaitlistRepository) Update(ctx context.Context, entry *domain.WaitlistEntry) error {
	query := `
	UPDATE waitlist_entries
	SET status = $1,
		offer_unit_id = $2,
		notified_at = $3,
		notification_expires_at = $4,
		version = version + 1
	WHERE id = $5 AND version = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		entry.Status, entry.OfferUnitID, nullTime(entry.NotifiedAt), nullTime(entry.NotificationExpiresAt),
		entry.ID, entry.Version)
	if err != nil {
		return fmt.Errorf("update waitlist entry %s: %w", entry.ID, err)
	}
	if err := checkCAS(ctx, r.db, res, "waitlist_entries", entry.ID, domain.ErrWaitlistEntryNotFound); err != nil {
		return err
	}
	entry.Version++
	return nil
}
