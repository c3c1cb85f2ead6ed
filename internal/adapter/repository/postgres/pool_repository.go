package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type PoolRepository struct {
	db *sql.DB
}

func NewPoolRepository(db *sql.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

const poolColumns = `id, event_id, unit_id, total_capacity, sold, blocked, held, version, created_at, updated_at`

func scanPool(row rowScanner) (*domain.CapacityPool, error) {
	var p domain.CapacityPool
	err := row.Scan(
		&p.ID,
		&p.EventID,
		&p.UnitID,
		&p.TotalCapacity,
		&p.Sold,
		&p.Blocked,
		&p.Held,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PoolRepository) Create(ctx context.Context, pool *domain.CapacityPool) error {
	query := `
	INSERT INTO capacity_pools (` + poolColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		pool.ID, pool.EventID, pool.UnitID, pool.TotalCapacity,
		pool.Sold, pool.Blocked, pool.Held, pool.CreatedAt, pool.UpdatedAt)
	if err != nil {
		return mapErr(err, domain.ErrPoolNotFound)
	}
	pool.Version = 1
	return nil
}

func (r *PoolRepository) GetByID(ctx context.Context, poolID string) (*domain.CapacityPool, error) {
	query := `SELECT ` + poolColumns + ` FROM capacity_pools WHERE id = $1`
	p, err := scanPool(r.db.QueryRowContext(ctx, query, poolID))
	if err != nil {
		return nil, mapErr(err, domain.ErrPoolNotFound)
	}
	return p, nil
}

func (r *PoolRepository) ListByEvent(ctx context.Context, eventID string) ([]domain.CapacityPool, error) {
	query := `SELECT ` + poolColumns + ` FROM capacity_pools WHERE event_id = $1 ORDER BY unit_id`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []domain.CapacityPool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (r *PoolRepository) Update(ctx context.Context, pool *domain.CapacityPool) error {
	query := `
	UPDATE capacity_pools
	SET total_capacity = $1,
		sold = $2,
		blocked = $3,
		held = $4,
		updated_at = $5,
		version = version + 1
	WHERE id = $6 AND version = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		pool.TotalCapacity, pool.Sold, pool.Blocked, pool.Held, pool.UpdatedAt, pool.ID, pool.Version)
	if err != nil {
		return fmt.Errorf("update pool %s: %w", pool.ID, err)
	}
	if err := checkCAS(ctx, r.db, res, "capacity_pools", pool.ID, domain.ErrPoolNotFound); err != nil {
		return err
	}
	pool.Version++
	return nil
}

func (r *PoolRepository) CreateBlock(ctx context.Context, block *domain.CapacityBlock) error {
	query := `
	INSERT INTO capacity_blocks (id, pool_id, quantity, reason, active, created_at, released_at, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
	`
	_, err := r.db.ExecContext(ctx, query,
		block.ID, block.PoolID, block.Quantity, block.Reason, block.Active, block.CreatedAt, nullTime(block.ReleasedAt))
	if err != nil {
		return mapErr(err, domain.ErrBlockNotFound)
	}
	block.Version = 1
	return nil
}

func (r *PoolRepository) GetBlock(ctx context.Context, blockID string) (*domain.CapacityBlock, error) {
	query := `
	SELECT id, pool_id, quantity, reason, active, created_at, released_at, version
	FROM capacity_blocks
	WHERE id = $1
	`
	var (
		b          domain.CapacityBlock
		releasedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, blockID).Scan(
		&b.ID,
		&b.PoolID,
		&b.Quantity,
		&b.Reason,
		&b.Active,
		&b.CreatedAt,
		&releasedAt,
		&b.Version,
	)
	if err != nil {
		return nil, mapErr(err, domain.ErrBlockNotFound)
	}
	b.ReleasedAt = timePtr(releasedAt)
	return &b, nil
}

func (r *PoolRepository) UpdateBlock(ctx context.Context, block *domain.CapacityBlock) error {
	query := `
	UPDATE capacity_blocks
	SET active = $1,
		released_at = $2,
		version = version + 1
	WHERE id = $3 AND version = $4
	`
	res, err := r.db.ExecContext(ctx, query, block.Active, nullTime(block.ReleasedAt), block.ID, block.Version)
	if err != nil {
		return fmt.Errorf("update block %s: %w", block.ID, err)
	}
	if err := checkCAS(ctx, r.db, res, "capacity_blocks", block.ID, domain.ErrBlockNotFound); err != nil {
		return err
	}
	block.Version++
	return nil
}

func (r *PoolRepository) RecordAdjustment(ctx context.Context, adj domain.CapacityAdjustment) error {
	query := `
	INSERT INTO capacity_adjustments (id, pool_id, delta, reason, created_at)
	VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, adj.ID, adj.PoolID, adj.Delta, adj.Reason, adj.CreatedAt)
	return mapErr(err, domain.ErrPoolNotFound)
}
