package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type HoldRepository struct {
	db *sql.DB
}

func NewHoldRepository(db *sql.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

const holdColumns = `id, session_id, customer_id, event_id, kind, pool_id, unit_id, quantity, seat_ids, status, created_at, expires_at, closed_at, version`

func scanHold(row rowScanner) (*domain.Hold, error) {
	var (
		h        domain.Hold
		poolID   sql.NullString
		seatIDs  pq.StringArray
		closedAt sql.NullTime
	)
	err := row.Scan(
		&h.ID,
		&h.SessionID,
		&h.CustomerID,
		&h.EventID,
		&h.Kind,
		&poolID,
		&h.UnitID,
		&h.Quantity,
		&seatIDs,
		&h.Status,
		&h.CreatedAt,
		&h.ExpiresAt,
		&closedAt,
		&h.Version,
	)
	if err != nil {
		return nil, err
	}
	h.PoolID = poolID.String
	if len(seatIDs) > 0 {
		h.SeatIDs = []string(seatIDs)
	}
	h.ClosedAt = timePtr(closedAt)
	return &h, nil
}

func (r *HoldRepository) Create(ctx context.Context, hold *domain.Hold) error {
	query := `
	INSERT INTO holds (` + holdColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
	`
	_, err := r.db.ExecContext(ctx, query,
		hold.ID,
		hold.SessionID,
		hold.CustomerID,
		hold.EventID,
		hold.Kind,
		nullString(hold.PoolID),
		hold.UnitID,
		hold.Quantity,
		pq.Array(hold.SeatIDs),
		hold.Status,
		hold.CreatedAt,
		hold.ExpiresAt,
		nullTime(hold.ClosedAt),
	)
	if err != nil {
		return mapErr(err, domain.ErrHoldNotFound)
	}
	hold.Version = 1
	return nil
}

func (r *HoldRepository) GetByID(ctx context.Context, holdID string) (*domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1`
	h, err := scanHold(r.db.QueryRowContext(ctx, query, holdID))
	if err != nil {
		return nil, mapErr(err, domain.ErrHoldNotFound)
	}
	return h, nil
}

func (r *HoldRepository) Update(ctx context.Context, hold *domain.Hold) error {
	query := `
	UPDATE holds
	SET quantity = $1,
		seat_ids = $2,
		status = $3,
		expires_at = $4,
		closed_at = $5,
		version = version + 1
	WHERE id = $6 AND version = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		hold.Quantity, pq.Array(hold.SeatIDs), hold.Status, hold.ExpiresAt, nullTime(hold.ClosedAt), hold.ID, hold.Version)
	if err != nil {
		return fmt.Errorf("update hold %s: %w", hold.ID, err)
	}
	if err := checkCAS(ctx, r.db, res, "holds", hold.ID, domain.ErrHoldNotFound); err != nil {
		return err
	}
	hold.Version++
	return nil
}

func (r *HoldRepository) FindActiveBySessionPool(ctx context.Context, sessionID, poolID string) (*domain.Hold, error) {
	query := `
	SELECT ` + holdColumns + `
	FROM holds
	WHERE session_id = $1 AND pool_id = $2 AND kind = 'pool' AND status = 'active'
	LIMIT 1
	`
	h, err := scanHold(r.db.QueryRowContext(ctx, query, sessionID, poolID))
	if err != nil {
		return nil, mapErr(err, domain.ErrHoldNotFound)
	}
	return h, nil
}

func (r *HoldRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	query := `
	SELECT ` + holdColumns + `
	FROM holds
	WHERE status = 'active' AND expires_at < $1
	ORDER BY expires_at
	LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, *h)
	}

	return holds, rows.Err()
}
