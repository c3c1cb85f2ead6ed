package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type PoolRepository struct {
	mu          sync.RWMutex
	pools       map[string]domain.CapacityPool
	blocks      map[string]domain.CapacityBlock
	adjustments []domain.CapacityAdjustment
}

func NewPoolRepository() *PoolRepository {
	return &PoolRepository{
		pools:  make(map[string]domain.CapacityPool),
		blocks: make(map[string]domain.CapacityBlock),
	}
}

func (r *PoolRepository) Create(_ context.Context, pool *domain.CapacityPool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[pool.ID]; ok {
		return domain.ErrAlreadyExists
	}
	pool.Version = 1
	r.pools[pool.ID] = *pool
	return nil
}

func (r *PoolRepository) GetByID(_ context.Context, poolID string) (*domain.CapacityPool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[poolID]
	if !ok {
		return nil, domain.ErrPoolNotFound
	}
	return &p, nil
}

func (r *PoolRepository) ListByEvent(_ context.Context, eventID string) ([]domain.CapacityPool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.CapacityPool
	for _, p := range r.pools {
		if p.EventID == eventID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

func (r *PoolRepository) Update(_ context.Context, pool *domain.CapacityPool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.pools[pool.ID]
	if !ok {
		return domain.ErrPoolNotFound
	}
	if stored.Version != pool.Version {
		return domain.ErrVersionConflict
	}
	pool.Version++
	r.pools[pool.ID] = *pool
	return nil
}

func (r *PoolRepository) CreateBlock(_ context.Context, block *domain.CapacityBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blocks[block.ID]; ok {
		return domain.ErrAlreadyExists
	}
	block.Version = 1
	r.blocks[block.ID] = *block
	return nil
}

func (r *PoolRepository) GetBlock(_ context.Context, blockID string) (*domain.CapacityBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blocks[blockID]
	if !ok {
		return nil, domain.ErrBlockNotFound
	}
	if b.ReleasedAt != nil {
		t := *b.ReleasedAt
		b.ReleasedAt = &t
	}
	return &b, nil
}

func (r *PoolRepository) UpdateBlock(_ context.Context, block *domain.CapacityBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.blocks[block.ID]
	if !ok {
		return domain.ErrBlockNotFound
	}
	if stored.Version != block.Version {
		return domain.ErrVersionConflict
	}
	block.Version++
	r.blocks[block.ID] = *block
	return nil
}

func (r *PoolRepository) RecordAdjustment(_ context.Context, adj domain.CapacityAdjustment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adjustments = append(r.adjustments, adj)
	return nil
}

// Adjustments returns the recorded adjustments of a pool, oldest first.
func (r *PoolRepository) Adjustments(poolID string) []domain.CapacityAdjustment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.CapacityAdjustment
	for _, a := range r.adjustments {
		if a.PoolID == poolID {
			out = append(out, a)
		}
	}
	return out
}
