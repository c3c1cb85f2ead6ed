// Package postgres stores engine state in PostgreSQL. Every update is a
// compare-and-set on the row's version column.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

const uniqueViolation = "23505"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// mapErr translates driver errors into domain errors.
func mapErr(err, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domain.ErrAlreadyExists
	}
	return err
}

// checkCAS turns a zero-row versioned update into ErrVersionConflict when
// the row exists, or notFound when it does not.
func checkCAS(ctx context.Context, q querier, res sql.Result, table, id string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return notFound
	}
	return domain.ErrVersionConflict
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// Store bundles the repositories over one connection pool.
type Store struct {
	Pools     *PoolRepository
	Seats     *SeatRepository
	Holds     *HoldRepository
	Queues    *QueueRepository
	Entries   *QueueEntryRepository
	Waitlists *WaitlistRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		Pools:     NewPoolRepository(db),
		Seats:     NewSeatRepository(db),
		Holds:     NewHoldRepository(db),
		Queues:    NewQueueRepository(db),
		Entries:   NewQueueEntryRepository(db),
		Waitlists: NewWaitlistRepository(db),
	}
}
