package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
)

// AdmissionGate decides whether a session may reserve inventory of the
// given events. AdmissionService implements it.
type AdmissionGate interface {
	Authorize(ctx context.Context, token, sessionID string, eventIDs []string) error
}

type ReserveRequest struct {
	SessionID   string
	CustomerID  string
	AccessToken string
	Items       []domain.ReserveItem
	TTL         time.Duration
}

type SweepResult struct {
	Scanned int
	Expired int
	Failed  int
}

// HoldManager coordinates multi-item reservations across pools and seats
// and owns the hold lifecycle seen by callers.
type HoldManager struct {
	capacity   *CapacityService
	seats      *SeatService
	holds      ports.HoldRepository
	gate       AdmissionGate
	rt         Runtime
	defaultTTL time.Duration
	maxTTL     time.Duration
	batch      int
}

type HoldManagerOption func(*HoldManager)

func WithAdmissionGate(g AdmissionGate) HoldManagerOption {
	return func(m *HoldManager) { m.gate = g }
}

// WithHoldTTL sets the TTL used when a request names none, and the upper
// bound for requested TTLs.
func WithHoldTTL(def, max time.Duration) HoldManagerOption {
	return func(m *HoldManager) {
		if def > 0 {
			m.defaultTTL = def
		}
		if max > 0 {
			m.maxTTL = max
		}
	}
}

func WithSweepBatch(n int) HoldManagerOption {
	return func(m *HoldManager) {
		if n > 0 {
			m.batch = n
		}
	}
}

func NewHoldManager(capacity *CapacityService, seats *SeatService, holds ports.HoldRepository, rt Runtime, opts ...HoldManagerOption) *HoldManager {
	m := &HoldManager{
		capacity:   capacity,
		seats:      seats,
		holds:      holds,
		rt:         rt.withDefaults(),
		defaultTTL: 10 * time.Minute,
		maxTTL:     30 * time.Minute,
		batch:      100,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *HoldManager) ttl(requested time.Duration) time.Duration {
	if requested <= 0 {
		return m.defaultTTL
	}
	if requested > m.maxTTL {
		return m.maxTTL
	}
	return requested
}

// undoFunc reverses one sub-hold taken by Reserve.
type undoFunc func(ctx context.Context) error

// Reserve holds every item or nothing. When some items are unavailable
// the holds already taken are rolled back and a *domain.ReservationError
// lists each unavailable item.
func (m *HoldManager) Reserve(ctx context.Context, req ReserveRequest) (*domain.Reservation, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session is required", domain.ErrInvalidRequest)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", domain.ErrInvalidRequest)
	}
	pools, seatEvents, seatOrder, err := groupItems(req.Items)
	if err != nil {
		return nil, err
	}

	if m.gate != nil {
		events, err := m.EventsFor(ctx, req.Items)
		if err != nil {
			return nil, err
		}
		if err := m.gate.Authorize(ctx, req.AccessToken, req.SessionID, events); err != nil {
			return nil, err
		}
	}

	ttl := m.ttl(req.TTL)
	var (
		taken    []*domain.Hold
		shrinks  = make(map[int]poolHold)
		undos    []undoFunc
		failures []domain.ItemFailure
		fatal    error
	)

	// Refreshed pool holds keep their quantity until every item is held.
	for _, p := range pools {
		ph, err := m.capacity.hold(ctx, HoldPoolRequest{
			PoolID:     p.PoolID,
			Quantity:   p.Quantity,
			SessionID:  req.SessionID,
			CustomerID: req.CustomerID,
			TTL:        ttl,
		}, true)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientCapacity) {
				failures = append(failures, domain.ItemFailure{Item: p, Reason: domain.ErrInsufficientCapacity.Error(), Err: err})
				continue
			}
			fatal = fmt.Errorf("reserve %s: %w", p, err)
			break
		}
		if ph.shrinkTo > 0 {
			shrinks[len(taken)] = ph
		}
		taken = append(taken, ph.hold)
		undos = append(undos, func(ctx context.Context) error { return m.capacity.undo(ctx, ph.hold, ph.previous) })
	}

	if fatal == nil {
		for _, eventID := range seatOrder {
			seatIDs := seatEvents[eventID]
			res, err := m.seats.holdSeats(ctx, HoldSeatsRequest{
				EventID:    eventID,
				SeatIDs:    seatIDs,
				SessionID:  req.SessionID,
				CustomerID: req.CustomerID,
				TTL:        ttl,
			})
			if err != nil {
				var unavailable *domain.SeatsUnavailableError
				if errors.As(err, &unavailable) {
					for _, seatID := range unavailable.Conflicts {
						failures = append(failures, domain.ItemFailure{
							Item:      domain.ReserveItem{EventID: eventID, SeatID: seatID},
							Reason:    domain.ErrSeatsUnavailable.Error(),
							Conflicts: []string{seatID},
							Err:       domain.ErrSeatsUnavailable,
						})
					}
					continue
				}
				fatal = fmt.Errorf("reserve seats of event %s: %w", eventID, err)
				break
			}
			taken = append(taken, res.holds()...)
			undos = append(undos, func(ctx context.Context) error { return m.seats.undo(ctx, res) })
		}
	}

	if fatal != nil || len(failures) > 0 {
		m.rollback(ctx, req.SessionID, undos)
		if fatal != nil {
			return nil, fatal
		}
		return nil, &domain.ReservationError{Failures: failures}
	}

	for i, ph := range shrinks {
		hold, err := m.capacity.shrink(ctx, ph.hold.ID, ph.hold.PoolID, ph.shrinkTo)
		if err != nil {
			// The surplus stays held until the hold ends.
			m.rt.Log.Warnw("failed to shrink refreshed hold", "hold_id", ph.hold.ID, "quantity", ph.shrinkTo, "error", err)
			continue
		}
		taken[i] = hold
	}

	reservation := &domain.Reservation{SessionID: req.SessionID, Holds: taken}
	for i, h := range taken {
		if i == 0 || h.ExpiresAt.Before(reservation.ExpiresAt) {
			reservation.ExpiresAt = h.ExpiresAt
		}
	}
	m.rt.Log.Infow("reservation held", "session_id", req.SessionID, "holds", len(taken), "expires_at", reservation.ExpiresAt)
	return reservation, nil
}

// rollback runs the undos newest first. The context is detached from the
// caller so a cancelled request still gives back what it took.
func (m *HoldManager) rollback(ctx context.Context, sessionID string, undos []undoFunc) {
	ctx = context.WithoutCancel(ctx)
	for i := len(undos) - 1; i >= 0; i-- {
		if err := undos[i](ctx); err != nil {
			// The sweep reclaims whatever is left once it expires.
			m.rt.Log.Errorw("failed to roll back sub-hold", "session_id", sessionID, "error", err)
		}
	}
}

// groupItems sums pool quantities per pool and collects seat ids per
// event, both in first-seen order.
func groupItems(items []domain.ReserveItem) ([]domain.ReserveItem, map[string][]string, []string, error) {
	var (
		pools     []domain.ReserveItem
		poolIndex = make(map[string]int)
		seats     = make(map[string][]string)
		order     []string
	)
	for _, item := range items {
		if item.IsSeat() {
			if item.EventID == "" {
				return nil, nil, nil, fmt.Errorf("%w: seat %s has no event", domain.ErrInvalidRequest, item.SeatID)
			}
			if _, ok := seats[item.EventID]; !ok {
				order = append(order, item.EventID)
			}
			seats[item.EventID] = append(seats[item.EventID], item.SeatID)
			continue
		}
		if item.PoolID == "" {
			return nil, nil, nil, fmt.Errorf("%w: item needs a seat or a pool", domain.ErrInvalidRequest)
		}
		if item.Quantity == 0 {
			return nil, nil, nil, fmt.Errorf("%w: pool %s", domain.ErrInvalidQuantity, item.PoolID)
		}
		if i, ok := poolIndex[item.PoolID]; ok {
			pools[i].Quantity += item.Quantity
			continue
		}
		poolIndex[item.PoolID] = len(pools)
		pools = append(pools, domain.ReserveItem{PoolID: item.PoolID, Quantity: item.Quantity})
	}
	return pools, seats, order, nil
}

// EventsFor resolves the distinct events touched by the items, sorted.
func (m *HoldManager) EventsFor(ctx context.Context, items []domain.ReserveItem) ([]string, error) {
	seen := make(map[string]struct{})
	for _, item := range items {
		eventID := item.EventID
		if !item.IsSeat() && item.PoolID != "" {
			pool, err := m.capacity.GetPool(ctx, item.PoolID)
			if err != nil {
				return nil, err
			}
			eventID = pool.EventID
		}
		if eventID != "" {
			seen[eventID] = struct{}{}
		}
	}
	events := make([]string, 0, len(seen))
	for id := range seen {
		events = append(events, id)
	}
	sort.Strings(events)
	return events, nil
}

func (m *HoldManager) Get(ctx context.Context, holdID string) (*domain.Hold, error) {
	return m.holds.GetByID(ctx, holdID)
}

func (m *HoldManager) Renew(ctx context.Context, holdID string, ttl time.Duration) (*domain.Hold, error) {
	hold, err := m.holds.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	ttl = m.ttl(ttl)
	if hold.Kind == domain.HoldKindPool {
		return m.capacity.Renew(ctx, holdID, ttl)
	}
	return m.seats.Renew(ctx, holdID, ttl)
}

// Convert turns the hold into a sale. Converting twice is a no-op.
func (m *HoldManager) Convert(ctx context.Context, holdID string) (*domain.Hold, error) {
	hold, err := m.holds.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Kind == domain.HoldKindPool {
		hold, err = m.capacity.ConvertToSale(ctx, holdID)
	} else {
		hold, err = m.seats.ConvertToSale(ctx, holdID)
	}
	if err != nil {
		return nil, err
	}
	m.rt.Log.Infow("hold converted", "hold_id", hold.ID, "session_id", hold.SessionID)
	return hold, nil
}

func (m *HoldManager) Release(ctx context.Context, holdID string) (*domain.Hold, error) {
	hold, err := m.holds.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Kind == domain.HoldKindPool {
		return m.capacity.Release(ctx, holdID)
	}
	return m.seats.Release(ctx, holdID)
}

func (m *HoldManager) expire(ctx context.Context, hold *domain.Hold) (*domain.Hold, error) {
	if hold.Kind == domain.HoldKindPool {
		return m.capacity.Expire(ctx, hold.ID)
	}
	return m.seats.Expire(ctx, hold.ID)
}

// ExpireSweep expires every active hold past its expiry and convert grace,
// one at a time. A hold converted or released concurrently is skipped.
func (m *HoldManager) ExpireSweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	grace := max(m.capacity.grace, m.seats.grace)
	for {
		now := m.rt.now()
		expired, err := m.holds.ListExpired(ctx, now.Add(-grace), m.batch)
		if err != nil {
			return result, fmt.Errorf("list expired holds: %w", err)
		}

		progressed := false
		for i := range expired {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Scanned++
			hold, err := m.expire(ctx, &expired[i])
			if err != nil {
				result.Failed++
				m.rt.Log.Warnw("failed to expire hold", "hold_id", expired[i].ID, "error", err)
				continue
			}
			if hold.Status == domain.HoldExpired {
				result.Expired++
				progressed = true
			}
		}

		if len(expired) < m.batch || !progressed {
			break
		}
	}
	if result.Expired > 0 {
		m.rt.Log.Infow("expired holds", "count", result.Expired, "failed", result.Failed)
	}
	return result, nil
}

// AvailableInUnit reports what is currently free for the unit: pool
// capacity and section seats together.
func (m *HoldManager) AvailableInUnit(ctx context.Context, eventID, unitID string) (uint, error) {
	pooled, err := m.capacity.AvailableInUnit(ctx, eventID, unitID)
	if err != nil {
		return 0, err
	}
	seated, err := m.seats.AvailableInUnit(ctx, eventID, unitID)
	if err != nil {
		return 0, err
	}
	return pooled + seated, nil
}
