package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type SeatRepository struct {
	db *sql.DB
}

func NewSeatRepository(db *sql.DB) *SeatRepository {
	return &SeatRepository{db: db}
}

const seatColumns = `event_id, seat_id, section_id, status, hold_id, version, updated_at`

func scanSeat(row rowScanner) (domain.SeatLock, error) {
	var (
		seat   domain.SeatLock
		holdID sql.NullString
	)
	err := row.Scan(
		&seat.EventID,
		&seat.SeatID,
		&seat.SectionID,
		&seat.Status,
		&holdID,
		&seat.Version,
		&seat.UpdatedAt,
	)
	if err != nil {
		return seat, err
	}
	if holdID.Valid {
		seat.HoldID = holdID.String
	}
	return seat, nil
}

func (r *SeatRepository) CreateMany(ctx context.Context, seats []domain.SeatLock) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer tx.Rollback()

	query := `
	INSERT INTO seat_locks (` + seatColumns + `)
	VALUES ($1, $2, $3, $4, $5, 1, $6)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare seat statement: %w", err)
	}

	defer stmt.Close()

	for _, s := range seats {
		_, err := stmt.ExecContext(ctx, s.EventID, s.SeatID, s.SectionID, s.Status, nullString(s.HoldID), s.UpdatedAt)
		if err != nil {
			return mapErr(err, domain.ErrSeatNotFound)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seats: %w", err)
	}

	for i := range seats {
		seats[i].Version = 1
	}
	return nil
}

// GetMany returns the seats in the requested order.
func (r *SeatRepository) GetMany(ctx context.Context, eventID string, seatIDs []string) ([]domain.SeatLock, error) {
	query := `
	SELECT ` + seatColumns + `
	FROM seat_locks
	WHERE event_id = $1 AND seat_id = ANY($2)
	`
	rows, err := r.db.QueryContext(ctx, query, eventID, pq.Array(seatIDs))
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	byID := make(map[string]domain.SeatLock, len(seatIDs))
	for rows.Next() {
		seat, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		byID[seat.SeatID] = seat
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	seats := make([]domain.SeatLock, 0, len(byID))
	for _, id := range seatIDs {
		if seat, ok := byID[id]; ok {
			seats = append(seats, seat)
			delete(byID, id)
		}
	}
	return seats, nil
}

func (r *SeatRepository) ListByEvent(ctx context.Context, eventID string) ([]domain.SeatLock, error) {
	query := `
	SELECT ` + seatColumns + `
	FROM seat_locks
	WHERE event_id = $1
	ORDER BY seat_id
	`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var seats []domain.SeatLock
	for rows.Next() {
		seat, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

// UpdateMany writes every seat in one transaction. A single stale version
// rolls the whole batch back.
func (r *SeatRepository) UpdateMany(ctx context.Context, seats []domain.SeatLock) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer tx.Rollback()

	query := `
	UPDATE seat_locks
	SET status = $1,
		hold_id = $2,
		updated_at = $3,
		version = version + 1
	WHERE event_id = $4 AND seat_id = $5 AND version = $6
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare seat update: %w", err)
	}

	defer stmt.Close()

	for _, s := range seats {
		res, err := stmt.ExecContext(ctx, s.Status, nullString(s.HoldID), s.UpdatedAt, s.EventID, s.SeatID, s.Version)
		if err != nil {
			return fmt.Errorf("failed to update seat %s: %w", s.SeatID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM seat_locks WHERE event_id = $1 AND seat_id = $2)`,
				s.EventID, s.SeatID).Scan(&exists)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrSeatNotFound
			}
			return domain.ErrVersionConflict
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seat update: %w", err)
	}

	for i := range seats {
		seats[i].Version++
	}
	return nil
}
