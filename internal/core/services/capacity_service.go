package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
)

type HoldPoolRequest struct {
	PoolID     string
	Quantity   uint
	SessionID  string
	CustomerID string
	TTL        time.Duration
}

// CapacityService owns the counters of capacity pools. Every mutation
// runs under the pool's lock and is written back with a version check.
type CapacityService struct {
	pools  ports.PoolRepository
	holds  ports.HoldRepository
	rt     Runtime
	cache  ports.AvailabilityCache
	events ports.CapacityEventPublisher
	grace  time.Duration
}

type CapacityOption func(*CapacityService)

func WithCapacityCache(c ports.AvailabilityCache) CapacityOption {
	return func(s *CapacityService) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithCapacityEvents(p ports.CapacityEventPublisher) CapacityOption {
	return func(s *CapacityService) {
		if p != nil {
			s.events = p
		}
	}
}

// WithConvertGrace lets a hold convert up to d past its expiry.
func WithConvertGrace(d time.Duration) CapacityOption {
	return func(s *CapacityService) {
		if d >= 0 {
			s.grace = d
		}
	}
}

func NewCapacityService(pools ports.PoolRepository, holds ports.HoldRepository, rt Runtime, opts ...CapacityOption) *CapacityService {
	s := &CapacityService{
		pools:  pools,
		holds:  holds,
		rt:     rt.withDefaults(),
		cache:  nopCache{},
		events: nopPublisher{},
		grace:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CapacityService) CreatePool(ctx context.Context, eventID, unitID string, capacity uint) (*domain.CapacityPool, error) {
	if eventID == "" || unitID == "" {
		return nil, fmt.Errorf("%w: event and unit are required", domain.ErrInvalidRequest)
	}
	now := s.rt.now()
	pool := &domain.CapacityPool{
		ID:            uuid.NewString(),
		EventID:       eventID,
		UnitID:        unitID,
		TotalCapacity: capacity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.pools.Create(ctx, pool); err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

func (s *CapacityService) GetPool(ctx context.Context, poolID string) (*domain.CapacityPool, error) {
	return s.pools.GetByID(ctx, poolID)
}

// Availability serves the pool's counters through the availability cache.
func (s *CapacityService) Availability(ctx context.Context, poolID string) (*domain.PoolAvailability, error) {
	if a, ok := s.cache.GetPool(ctx, poolID); ok {
		return a, nil
	}
	pool, err := s.pools.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}
	snap := pool.Snapshot()
	s.cache.SetPool(ctx, snap)
	return &snap, nil
}

// Hold reserves quantity from the pool for a session. A session holding
// the pool already gets its hold refreshed to the new quantity instead of
// a second hold.
func (s *CapacityService) Hold(ctx context.Context, req HoldPoolRequest) (*domain.Hold, error) {
	taken, err := s.hold(ctx, req, false)
	if err != nil {
		return nil, err
	}
	return taken.hold, nil
}

// poolHold is a pool hold taken or refreshed on behalf of a reservation.
type poolHold struct {
	hold *domain.Hold
	// previous is the refreshed hold as it was before, nil for a new hold.
	previous *domain.Hold
	// shrinkTo is the requested quantity of a refreshed hold that keeps
	// its larger quantity until the reservation commits. Zero otherwise.
	shrinkTo uint
}

// hold takes or refreshes the session's hold on the pool. With
// deferShrink, a refreshed hold asked to get smaller keeps its quantity and
// reports the target in shrinkTo, so nothing is freed before commit.
func (s *CapacityService) hold(ctx context.Context, req HoldPoolRequest, deferShrink bool) (poolHold, error) {
	if req.Quantity == 0 {
		return poolHold{}, domain.ErrInvalidQuantity
	}
	if req.SessionID == "" || req.TTL <= 0 {
		return poolHold{}, fmt.Errorf("%w: session and ttl are required", domain.ErrInvalidRequest)
	}

	var (
		result  poolHold
		freed   uint
		eventID string
		unitID  string
	)

	err := s.rt.locked(ctx, []string{domain.PoolKey(req.PoolID)}, func(ctx context.Context) error {
		result, freed = poolHold{}, 0

		pool, err := s.pools.GetByID(ctx, req.PoolID)
		if err != nil {
			return err
		}
		eventID, unitID = pool.EventID, pool.UnitID

		existing, err := s.holds.FindActiveBySessionPool(ctx, req.SessionID, req.PoolID)
		if err != nil && !errors.Is(err, domain.ErrHoldNotFound) {
			return err
		}

		var held uint
		if existing != nil {
			held = existing.Quantity
		}
		want := req.Quantity
		if deferShrink && want < held {
			want = held
		}
		if want > held && pool.Available() < want-held {
			return domain.ErrInsufficientCapacity
		}

		now := s.rt.now()
		restore := *pool
		pool.Held = pool.Held - held + want
		pool.UpdatedAt = now
		if err := s.pools.Update(ctx, pool); err != nil {
			return err
		}

		if existing != nil {
			snapshot := *existing
			existing.Quantity = want
			existing.ExpiresAt = now.Add(req.TTL)
			if req.CustomerID != "" {
				existing.CustomerID = req.CustomerID
			}
			if err := s.holds.Update(ctx, existing); err != nil {
				s.restorePool(ctx, pool, &restore)
				return err
			}
			result = poolHold{hold: existing, previous: &snapshot}
			if want > req.Quantity {
				result.shrinkTo = req.Quantity
			}
			if held > want {
				freed = held - want
			}
			return nil
		}

		hold := &domain.Hold{
			ID:         uuid.NewString(),
			SessionID:  req.SessionID,
			CustomerID: req.CustomerID,
			EventID:    pool.EventID,
			Kind:       domain.HoldKindPool,
			PoolID:     pool.ID,
			UnitID:     pool.UnitID,
			Quantity:   req.Quantity,
			Status:     domain.HoldActive,
			CreatedAt:  now,
			ExpiresAt:  now.Add(req.TTL),
		}
		if err := s.holds.Create(ctx, hold); err != nil {
			s.restorePool(ctx, pool, &restore)
			return fmt.Errorf("create hold: %w", err)
		}
		result = poolHold{hold: hold}
		return nil
	})
	if err != nil {
		return poolHold{}, err
	}

	s.cache.InvalidatePool(ctx, req.PoolID)
	if freed > 0 {
		s.publish(ctx, domain.CapacityFreed{EventID: eventID, UnitID: unitID, Quantity: freed})
	}
	return result, nil
}

// shrink lowers an active hold to quantity and returns the difference to
// the pool. A hold that is no longer active or already small enough is
// returned unchanged.
func (s *CapacityService) shrink(ctx context.Context, holdID, poolID string, quantity uint) (*domain.Hold, error) {
	var (
		result *domain.Hold
		freed  domain.CapacityFreed
	)
	err := s.rt.locked(ctx, []string{domain.PoolKey(poolID)}, func(ctx context.Context) error {
		result, freed = nil, domain.CapacityFreed{}
		current, err := s.holds.GetByID(ctx, holdID)
		if err != nil {
			return err
		}
		if !current.IsActive() || current.Quantity <= quantity {
			result = current
			return nil
		}
		pool, err := s.pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		diff := current.Quantity - quantity
		restore := *pool
		if pool.Held >= diff {
			pool.Held -= diff
		} else {
			pool.Held = 0
		}
		pool.UpdatedAt = s.rt.now()
		if err := s.pools.Update(ctx, pool); err != nil {
			return err
		}
		current.Quantity = quantity
		if err := s.holds.Update(ctx, current); err != nil {
			s.restorePool(ctx, pool, &restore)
			return err
		}
		result = current
		freed = domain.CapacityFreed{EventID: pool.EventID, UnitID: pool.UnitID, Quantity: diff}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidatePool(ctx, poolID)
	s.publish(ctx, freed)
	return result, nil
}

// restorePool writes back the counters saved before a step whose second
// write failed. The pool lock is still held, so only the version moved.
func (s *CapacityService) restorePool(ctx context.Context, current, saved *domain.CapacityPool) {
	saved.Version = current.Version
	saved.UpdatedAt = s.rt.now()
	if err := s.pools.Update(ctx, saved); err != nil {
		s.rt.Log.Errorw("failed to restore pool counters", "pool_id", saved.ID, "error", err)
	}
}

// undo puts a refreshed hold back to its earlier quantity and expiry, or
// releases a hold this reservation created.
func (s *CapacityService) undo(ctx context.Context, hold, previous *domain.Hold) error {
	if previous == nil {
		_, err := s.Release(ctx, hold.ID)
		return err
	}

	var freed uint
	err := s.rt.locked(ctx, []string{domain.PoolKey(hold.PoolID)}, func(ctx context.Context) error {
		freed = 0
		current, err := s.holds.GetByID(ctx, hold.ID)
		if err != nil {
			return err
		}
		if !current.IsActive() {
			return nil
		}
		pool, err := s.pools.GetByID(ctx, hold.PoolID)
		if err != nil {
			return err
		}

		restore := *pool
		if current.Quantity > previous.Quantity {
			freed = current.Quantity - previous.Quantity
		}
		pool.Held = pool.Held - current.Quantity + previous.Quantity
		if !pool.Consistent() {
			return domain.ErrInsufficientCapacity
		}
		pool.UpdatedAt = s.rt.now()
		if err := s.pools.Update(ctx, pool); err != nil {
			return err
		}
		current.Quantity = previous.Quantity
		current.ExpiresAt = previous.ExpiresAt
		if err := s.holds.Update(ctx, current); err != nil {
			s.restorePool(ctx, pool, &restore)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.InvalidatePool(ctx, hold.PoolID)
	if freed > 0 {
		s.publish(ctx, domain.CapacityFreed{EventID: hold.EventID, UnitID: hold.UnitID, Quantity: freed})
	}
	return nil
}

// Release returns an active hold's quantity to the pool. Releasing a hold
// that already ended is a no-op.
func (s *CapacityService) Release(ctx context.Context, holdID string) (*domain.Hold, error) {
	return s.finish(ctx, holdID, domain.HoldReleased)
}

// ConvertToSale moves the hold's quantity from held to sold. Converting a
// converted hold again succeeds without side effects.
func (s *CapacityService) ConvertToSale(ctx context.Context, holdID string) (*domain.Hold, error) {
	return s.finish(ctx, holdID, domain.HoldConverted)
}

// Expire ends an active hold once it is past its expiry and the convert
// grace. A hold converted or released first is left untouched.
func (s *CapacityService) Expire(ctx context.Context, holdID string) (*domain.Hold, error) {
	return s.finish(ctx, holdID, domain.HoldExpired)
}

func (s *CapacityService) finish(ctx context.Context, holdID string, to domain.HoldStatus) (*domain.Hold, error) {
	hold, err := s.holds.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Kind != domain.HoldKindPool {
		return nil, fmt.Errorf("%w: hold %s is not a pool hold", domain.ErrInvalidRequest, holdID)
	}
	if hold.IsTerminal() {
		return settledHold(hold, to)
	}

	var (
		result *domain.Hold
		freed  bool
	)
	err = s.rt.locked(ctx, []string{domain.PoolKey(hold.PoolID)}, func(ctx context.Context) error {
		result, freed = nil, false

		current, err := s.holds.GetByID(ctx, holdID)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			result, err = settledHold(current, to)
			return err
		}

		now := s.rt.now()
		switch to {
		case domain.HoldConverted:
			if !current.Convertible(now, s.grace) {
				return domain.ErrHoldExpired
			}
		case domain.HoldExpired:
			if !current.Reclaimable(now, s.grace) {
				result = current
				return nil
			}
		}

		pool, err := s.pools.GetByID(ctx, current.PoolID)
		if err != nil {
			return err
		}
		restore := *pool
		if pool.Held >= current.Quantity {
			pool.Held -= current.Quantity
		} else {
			s.rt.Log.Warnw("pool held below hold quantity", "pool_id", pool.ID, "hold_id", current.ID, "held", pool.Held, "quantity", current.Quantity)
			pool.Held = 0
		}
		if to == domain.HoldConverted {
			pool.Sold += current.Quantity
		}
		pool.UpdatedAt = now
		if err := s.pools.Update(ctx, pool); err != nil {
			return err
		}

		current.Status = to
		current.ClosedAt = &now
		if err := s.holds.Update(ctx, current); err != nil {
			s.restorePool(ctx, pool, &restore)
			return err
		}
		result = current
		freed = to != domain.HoldConverted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidatePool(ctx, hold.PoolID)
	if freed {
		s.publish(ctx, result.Freed())
	}
	return result, nil
}

// settledHold answers a transition request on a hold that already ended.
func settledHold(hold *domain.Hold, to domain.HoldStatus) (*domain.Hold, error) {
	if to != domain.HoldConverted || hold.Status == domain.HoldConverted {
		return hold, nil
	}
	if hold.Status == domain.HoldExpired {
		return nil, domain.ErrHoldExpired
	}
	return nil, domain.ErrHoldNotActive
}

// Renew pushes the expiry of an active, unexpired hold to now+ttl.
func (s *CapacityService) Renew(ctx context.Context, holdID string, ttl time.Duration) (*domain.Hold, error) {
	hold, err := s.holds.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	return renewHold(ctx, s.rt, s.holds, hold.Keys(), holdID, ttl)
}

func renewHold(ctx context.Context, rt Runtime, holds ports.HoldRepository, keys []string, holdID string, ttl time.Duration) (*domain.Hold, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidRequest)
	}
	var result *domain.Hold
	err := rt.locked(ctx, keys, func(ctx context.Context) error {
		current, err := holds.GetByID(ctx, holdID)
		if err != nil {
			return err
		}
		now := rt.now()
		switch {
		case current.Status == domain.HoldExpired:
			return domain.ErrHoldExpired
		case !current.IsActive():
			return domain.ErrHoldNotActive
		case current.ExpiredAt(now):
			return domain.ErrHoldExpired
		}
		current.ExpiresAt = now.Add(ttl)
		if err := holds.Update(ctx, current); err != nil {
			return err
		}
		result = current
		return nil
	})
	return result, err
}

// AdjustCapacity changes the pool's total. The result may not drop below
// what is already sold, blocked or held.
func (s *CapacityService) AdjustCapacity(ctx context.Context, poolID string, delta int, reason string) (*domain.CapacityPool, error) {
	if delta == 0 {
		return s.pools.GetByID(ctx, poolID)
	}

	var result *domain.CapacityPool
	err := s.rt.locked(ctx, []string{domain.PoolKey(poolID)}, func(ctx context.Context) error {
		pool, err := s.pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		next := int64(pool.TotalCapacity) + int64(delta)
		if next < int64(pool.Floor()) {
			return fmt.Errorf("%w: total %d would be below %d", domain.ErrBelowFloor, next, pool.Floor())
		}
		now := s.rt.now()
		pool.TotalCapacity = uint(next)
		pool.UpdatedAt = now
		if err := s.pools.Update(ctx, pool); err != nil {
			return err
		}
		result = pool
		return nil
	})
	if err != nil {
		return nil, err
	}

	adj := domain.CapacityAdjustment{
		ID:        uuid.NewString(),
		PoolID:    poolID,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: s.rt.now(),
	}
	if err := s.pools.RecordAdjustment(ctx, adj); err != nil {
		s.rt.Log.Warnw("failed to record capacity adjustment", "pool_id", poolID, "delta", delta, "error", err)
	}

	s.cache.InvalidatePool(ctx, poolID)
	if delta > 0 {
		s.publish(ctx, domain.CapacityFreed{EventID: result.EventID, UnitID: result.UnitID, Quantity: uint(delta)})
	}
	return result, nil
}

// Block withholds quantity from sale until Unblock.
func (s *CapacityService) Block(ctx context.Context, poolID string, quantity uint, reason string) (*domain.CapacityBlock, error) {
	if quantity == 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var block *domain.CapacityBlock
	err := s.rt.locked(ctx, []string{domain.PoolKey(poolID)}, func(ctx context.Context) error {
		pool, err := s.pools.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		if pool.Available() < quantity {
			return domain.ErrInsufficientCapacity
		}
		now := s.rt.now()
		restore := *pool
		pool.Blocked += quantity
		pool.UpdatedAt = now
		if err := s.pools.Update(ctx, pool); err != nil {
			return err
		}
		b := &domain.CapacityBlock{
			ID:        uuid.NewString(),
			PoolID:    poolID,
			Quantity:  quantity,
			Reason:    reason,
			Active:    true,
			CreatedAt: now,
		}
		if err := s.pools.CreateBlock(ctx, b); err != nil {
			s.restorePool(ctx, pool, &restore)
			return fmt.Errorf("create block: %w", err)
		}
		block = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidatePool(ctx, poolID)
	return block, nil
}

// Unblock returns a block's quantity to sale. Unblocking twice is a no-op.
func (s *CapacityService) Unblock(ctx context.Context, blockID string) (*domain.CapacityBlock, error) {
	block, err := s.pools.GetBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if !block.Active {
		return block, nil
	}

	var (
		result *domain.CapacityBlock
		pool   *domain.CapacityPool
	)
	err = s.rt.locked(ctx, []string{domain.PoolKey(block.PoolID)}, func(ctx context.Context) error {
		result, pool = nil, nil
		current, err := s.pools.GetBlock(ctx, blockID)
		if err != nil {
			return err
		}
		if !current.Active {
			result = current
			return nil
		}
		p, err := s.pools.GetByID(ctx, current.PoolID)
		if err != nil {
			return err
		}
		now := s.rt.now()
		restore := *p
		if p.Blocked >= current.Quantity {
			p.Blocked -= current.Quantity
		} else {
			p.Blocked = 0
		}
		p.UpdatedAt = now
		if err := s.pools.Update(ctx, p); err != nil {
			return err
		}
		current.Active = false
		current.ReleasedAt = &now
		if err := s.pools.UpdateBlock(ctx, current); err != nil {
			s.restorePool(ctx, p, &restore)
			return err
		}
		result, pool = current, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidatePool(ctx, block.PoolID)
	if pool != nil {
		s.publish(ctx, domain.CapacityFreed{EventID: pool.EventID, UnitID: pool.UnitID, Quantity: result.Quantity})
	}
	return result, nil
}

// AvailableInUnit sums the available quantity of the event's pools for a
// unit; an empty unit counts every pool.
func (s *CapacityService) AvailableInUnit(ctx context.Context, eventID, unitID string) (uint, error) {
	pools, err := s.pools.ListByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	var total uint
	for i := range pools {
		if unitID == "" || pools[i].UnitID == unitID {
			total += pools[i].Available()
		}
	}
	return total, nil
}

func (s *CapacityService) publish(ctx context.Context, ev domain.CapacityFreed) {
	if ev.Quantity == 0 {
		return
	}
	if err := s.events.PublishCapacityFreed(ctx, ev); err != nil {
		s.rt.Log.Warnw("failed to publish freed capacity", "event_id", ev.EventID, "unit_id", ev.UnitID, "quantity", ev.Quantity, "error", err)
	}
}
