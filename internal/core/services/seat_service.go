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

type HoldSeatsRequest struct {
	EventID    string
	SeatIDs    []string
	SessionID  string
	CustomerID string
	TTL        time.Duration
}

// seatHoldResult is what one HoldSeats call changed: the new hold for
// seats that were free, and holds of the same session whose expiry was
// refreshed because the session asked for their seats again.
type seatHoldResult struct {
	created   *domain.Hold
	refreshed []*domain.Hold
	previous  map[string]time.Time
}

func (r *seatHoldResult) holds() []*domain.Hold {
	out := make([]*domain.Hold, 0, len(r.refreshed)+1)
	if r.created != nil {
		out = append(out, r.created)
	}
	return append(out, r.refreshed...)
}

// SeatService is the per-seat lock table for reserved seating. A multi
// seat request locks every seat key at once, so holds are all-or-nothing
// and never deadlock.
type SeatService struct {
	seats  ports.SeatRepository
	holds  ports.HoldRepository
	rt     Runtime
	cache  ports.AvailabilityCache
	events ports.CapacityEventPublisher
	grace  time.Duration
}

type SeatOption func(*SeatService)

func WithSeatCache(c ports.AvailabilityCache) SeatOption {
	return func(s *SeatService) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithSeatEvents(p ports.CapacityEventPublisher) SeatOption {
	return func(s *SeatService) {
		if p != nil {
			s.events = p
		}
	}
}

func WithSeatConvertGrace(d time.Duration) SeatOption {
	return func(s *SeatService) {
		if d >= 0 {
			s.grace = d
		}
	}
}

func NewSeatService(seats ports.SeatRepository, holds ports.HoldRepository, rt Runtime, opts ...SeatOption) *SeatService {
	s := &SeatService{
		seats:  seats,
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

func (s *SeatService) CreateSeats(ctx context.Context, eventID, sectionID string, seatIDs []string) ([]domain.SeatLock, error) {
	seatIDs = dedupe(seatIDs)
	if eventID == "" || len(seatIDs) == 0 {
		return nil, fmt.Errorf("%w: event and seats are required", domain.ErrInvalidRequest)
	}
	now := s.rt.now()
	seats := make([]domain.SeatLock, 0, len(seatIDs))
	for _, id := range seatIDs {
		seats = append(seats, domain.SeatLock{
			EventID:   eventID,
			SeatID:    id,
			SectionID: sectionID,
			Status:    domain.SeatAvailable,
			UpdatedAt: now,
		})
	}
	if err := s.seats.CreateMany(ctx, seats); err != nil {
		return nil, fmt.Errorf("create seats: %w", err)
	}
	s.cache.InvalidateSeatMap(ctx, eventID)
	return seats, nil
}

// SeatMap lists every seat of the event with its status.
func (s *SeatService) SeatMap(ctx context.Context, eventID string) ([]domain.SeatView, error) {
	if views, ok := s.cache.GetSeatMap(ctx, eventID); ok {
		return views, nil
	}
	seats, err := s.seats.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.SeatView, 0, len(seats))
	for _, seat := range seats {
		views = append(views, domain.SeatView{SeatID: seat.SeatID, SectionID: seat.SectionID, Status: seat.Status})
	}
	s.cache.SetSeatMap(ctx, eventID, views)
	return views, nil
}

// HoldSeats holds every requested seat or none. On conflict the error is a
// *domain.SeatsUnavailableError naming exactly the seats that are taken.
func (s *SeatService) HoldSeats(ctx context.Context, req HoldSeatsRequest) ([]*domain.Hold, error) {
	res, err := s.holdSeats(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.holds(), nil
}

func (s *SeatService) holdSeats(ctx context.Context, req HoldSeatsRequest) (*seatHoldResult, error) {
	seatIDs := dedupe(req.SeatIDs)
	if req.EventID == "" || len(seatIDs) == 0 {
		return nil, fmt.Errorf("%w: event and seats are required", domain.ErrInvalidRequest)
	}
	if req.SessionID == "" || req.TTL <= 0 {
		return nil, fmt.Errorf("%w: session and ttl are required", domain.ErrInvalidRequest)
	}

	keys := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		keys = append(keys, domain.SeatKey(req.EventID, id))
	}

	var result *seatHoldResult
	err := s.rt.locked(ctx, keys, func(ctx context.Context) error {
		result = nil

		found, err := s.seats.GetMany(ctx, req.EventID, seatIDs)
		if err != nil {
			return err
		}
		byID := make(map[string]domain.SeatLock, len(found))
		for _, seat := range found {
			byID[seat.SeatID] = seat
		}

		now := s.rt.now()
		owners := make(map[string]*domain.Hold)
		var (
			conflicts []string
			free      []domain.SeatLock
		)
		for _, id := range seatIDs {
			seat, ok := byID[id]
			switch {
			case !ok:
				conflicts = append(conflicts, id)
			case seat.IsAvailable():
				free = append(free, seat)
			case seat.Status == domain.SeatHeld:
				owner, err := s.ownerOf(ctx, seat, owners)
				if err != nil {
					return err
				}
				if owner == nil || owner.SessionID != req.SessionID {
					conflicts = append(conflicts, id)
				}
			default:
				conflicts = append(conflicts, id)
			}
		}
		if len(conflicts) > 0 {
			return &domain.SeatsUnavailableError{EventID: req.EventID, Conflicts: conflicts}
		}

		res := &seatHoldResult{previous: make(map[string]time.Time)}
		if len(free) > 0 {
			hold, err := s.lockFree(ctx, req, free, now)
			if err != nil {
				return err
			}
			res.created = hold
		}

		// Seats this session already holds are refreshed in place.
		for _, owner := range owners {
			if owner.SessionID != req.SessionID {
				continue
			}
			res.previous[owner.ID] = owner.ExpiresAt
			owner.ExpiresAt = now.Add(req.TTL)
			if err := s.holds.Update(ctx, owner); err != nil {
				s.rollbackCreated(ctx, res.created)
				return err
			}
			res.refreshed = append(res.refreshed, owner)
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateSeatMap(ctx, req.EventID)
	return result, nil
}

// ownerOf loads the active hold a held seat points at. A seat whose hold
// is missing or already ended has no owner, and stays unavailable until
// the sweep frees it.
func (s *SeatService) ownerOf(ctx context.Context, seat domain.SeatLock, cache map[string]*domain.Hold) (*domain.Hold, error) {
	if h, ok := cache[seat.HoldID]; ok {
		return h, nil
	}
	h, err := s.holds.GetByID(ctx, seat.HoldID)
	if err != nil {
		if errors.Is(err, domain.ErrHoldNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !h.IsActive() {
		return nil, nil
	}
	cache[seat.HoldID] = h
	return h, nil
}

func (s *SeatService) lockFree(ctx context.Context, req HoldSeatsRequest, free []domain.SeatLock, now time.Time) (*domain.Hold, error) {
	ids := make([]string, 0, len(free))
	for _, seat := range free {
		ids = append(ids, seat.SeatID)
	}
	hold := &domain.Hold{
		ID:         uuid.NewString(),
		SessionID:  req.SessionID,
		CustomerID: req.CustomerID,
		EventID:    req.EventID,
		Kind:       domain.HoldKindSeats,
		SeatIDs:    ids,
		Status:     domain.HoldActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(req.TTL),
	}
	if err := s.holds.Create(ctx, hold); err != nil {
		return nil, fmt.Errorf("create hold: %w", err)
	}

	updated := make([]domain.SeatLock, 0, len(free))
	for _, seat := range free {
		seat.Status = domain.SeatHeld
		seat.HoldID = hold.ID
		seat.UpdatedAt = now
		updated = append(updated, seat)
	}
	if err := s.seats.UpdateMany(ctx, updated); err != nil {
		s.abandon(ctx, hold)
		return nil, err
	}
	return hold, nil
}

// abandon closes a hold record whose seats were never written.
func (s *SeatService) abandon(ctx context.Context, hold *domain.Hold) {
	now := s.rt.now()
	hold.Status = domain.HoldReleased
	hold.ClosedAt = &now
	if err := s.holds.Update(ctx, hold); err != nil {
		s.rt.Log.Errorw("failed to close abandoned seat hold", "hold_id", hold.ID, "error", err)
	}
}

// rollbackCreated frees the seats of a hold created earlier in the same
// locked step. The caller still holds every seat lock.
func (s *SeatService) rollbackCreated(ctx context.Context, hold *domain.Hold) {
	if hold == nil {
		return
	}
	if _, err := s.transition(ctx, hold, domain.HoldReleased); err != nil {
		s.rt.Log.Errorw("failed to roll back seat hold", "hold_id", hold.ID, "error", err)
	}
}

// undo reverses one HoldSeats call of a reservation that failed as a whole.
func (s *SeatService) undo(ctx context.Context, res *seatHoldResult) error {
	var errs []error
	if res.created != nil {
		if _, err := s.Release(ctx, res.created.ID); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range res.refreshed {
		prev := res.previous[h.ID]
		err := s.rt.locked(ctx, h.Keys(), func(ctx context.Context) error {
			current, err := s.holds.GetByID(ctx, h.ID)
			if err != nil {
				return err
			}
			if !current.IsActive() {
				return nil
			}
			current.ExpiresAt = prev
			return s.holds.Update(ctx, current)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Release frees the hold's seats that still point at it. Idempotent.
func (s *SeatService) Release(ctx context.Context, holdID string) (*domain.Hold, error) {
	return s.finish(ctx, holdID, domain.HoldReleased)
}

// ConvertToSale marks the hold's seats sold.
func (s *SeatService) ConvertToSale(ctx context.Context, holdID string) (*domain.Hold, error) {
	return s.finish(ctx, holdID, domain.HoldConverted)
}

// Expire frees the seats of an active hold past its expiry.
func (s *SeatService) Expire(ctx context.Context, holdID string) (*domain.Hold, error) {
	return s.finish(ctx, holdID, domain.HoldExpired)
}

func (s *SeatService) Renew(ctx context.Context, holdID string, ttl time.Duration) (*domain.Hold, error) {
	hold, err := s.holds.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	return renewHold(ctx, s.rt, s.holds, hold.Keys(), holdID, ttl)
}

func (s *SeatService) finish(ctx context.Context, holdID string, to domain.HoldStatus) (*domain.Hold, error) {
	hold, err := s.holds.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.Kind != domain.HoldKindSeats {
		return nil, fmt.Errorf("%w: hold %s is not a seat hold", domain.ErrInvalidRequest, holdID)
	}
	if hold.IsTerminal() {
		return settledHold(hold, to)
	}

	var (
		result *domain.Hold
		freed  []domain.CapacityFreed
	)
	// A hold's seat list only ever shrinks, so the keys read here cover
	// whatever the locked re-read finds.
	err = s.rt.locked(ctx, hold.Keys(), func(ctx context.Context) error {
		result, freed = nil, nil

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

		freed, err = s.transition(ctx, current, to)
		if err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateSeatMap(ctx, hold.EventID)
	for _, ev := range freed {
		if err := s.events.PublishCapacityFreed(ctx, ev); err != nil {
			s.rt.Log.Warnw("failed to publish freed seats", "event_id", ev.EventID, "unit_id", ev.UnitID, "error", err)
		}
	}
	return result, nil
}

// transition moves the seats owned by hold and then the hold itself to the
// terminal status. Callers hold every seat lock of the hold.
func (s *SeatService) transition(ctx context.Context, hold *domain.Hold, to domain.HoldStatus) ([]domain.CapacityFreed, error) {
	seats, err := s.seats.GetMany(ctx, hold.EventID, hold.SeatIDs)
	if err != nil {
		return nil, err
	}

	now := s.rt.now()
	var (
		updated  []domain.SeatLock
		restore  []domain.SeatLock
		sections = make(map[string]uint)
		order    []string
	)
	for _, seat := range seats {
		if !seat.OwnedBy(hold.ID) {
			continue
		}
		restore = append(restore, seat)
		if to == domain.HoldConverted {
			seat.Status = domain.SeatSold
		} else {
			seat.Status = domain.SeatAvailable
			seat.HoldID = ""
			if _, ok := sections[seat.SectionID]; !ok {
				order = append(order, seat.SectionID)
			}
			sections[seat.SectionID]++
		}
		seat.UpdatedAt = now
		updated = append(updated, seat)
	}

	if len(updated) > 0 {
		if err := s.seats.UpdateMany(ctx, updated); err != nil {
			return nil, err
		}
	}

	hold.Status = to
	hold.ClosedAt = &now
	if err := s.holds.Update(ctx, hold); err != nil {
		if len(restore) > 0 {
			for i := range restore {
				restore[i].Version = updated[i].Version
			}
			if rerr := s.seats.UpdateMany(ctx, restore); rerr != nil {
				s.rt.Log.Errorw("failed to restore seats", "hold_id", hold.ID, "error", rerr)
			}
		}
		return nil, err
	}

	freed := make([]domain.CapacityFreed, 0, len(order))
	for _, section := range order {
		freed = append(freed, domain.CapacityFreed{EventID: hold.EventID, UnitID: section, Quantity: sections[section]})
	}
	return freed, nil
}

// BlockSeats withholds available seats from sale. Every seat must be
// available, otherwise nothing changes.
func (s *SeatService) BlockSeats(ctx context.Context, eventID string, seatIDs []string) error {
	return s.adminTransition(ctx, eventID, seatIDs, domain.SeatAvailable, domain.SeatBlocked)
}

// UnblockSeats returns blocked seats to sale. Seats that are not blocked
// are left alone.
func (s *SeatService) UnblockSeats(ctx context.Context, eventID string, seatIDs []string) error {
	return s.adminTransition(ctx, eventID, seatIDs, domain.SeatBlocked, domain.SeatAvailable)
}

func (s *SeatService) adminTransition(ctx context.Context, eventID string, seatIDs []string, from, to domain.SeatStatus) error {
	seatIDs = dedupe(seatIDs)
	if eventID == "" || len(seatIDs) == 0 {
		return fmt.Errorf("%w: event and seats are required", domain.ErrInvalidRequest)
	}
	keys := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		keys = append(keys, domain.SeatKey(eventID, id))
	}

	var freed []domain.CapacityFreed
	err := s.rt.locked(ctx, keys, func(ctx context.Context) error {
		freed = nil
		found, err := s.seats.GetMany(ctx, eventID, seatIDs)
		if err != nil {
			return err
		}
		byID := make(map[string]domain.SeatLock, len(found))
		for _, seat := range found {
			byID[seat.SeatID] = seat
		}

		now := s.rt.now()
		var (
			conflicts []string
			updated   []domain.SeatLock
		)
		sections := make(map[string]uint)
		var order []string
		for _, id := range seatIDs {
			seat, ok := byID[id]
			if !ok {
				conflicts = append(conflicts, id)
				continue
			}
			if seat.Status != from {
				if to == domain.SeatBlocked {
					conflicts = append(conflicts, id)
				}
				continue
			}
			seat.Status = to
			seat.UpdatedAt = now
			updated = append(updated, seat)
			if to == domain.SeatAvailable {
				if _, ok := sections[seat.SectionID]; !ok {
					order = append(order, seat.SectionID)
				}
				sections[seat.SectionID]++
			}
		}
		if len(conflicts) > 0 {
			return &domain.SeatsUnavailableError{EventID: eventID, Conflicts: conflicts}
		}
		if len(updated) == 0 {
			return nil
		}
		if err := s.seats.UpdateMany(ctx, updated); err != nil {
			return err
		}
		for _, section := range order {
			freed = append(freed, domain.CapacityFreed{EventID: eventID, UnitID: section, Quantity: sections[section]})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.InvalidateSeatMap(ctx, eventID)
	for _, ev := range freed {
		if err := s.events.PublishCapacityFreed(ctx, ev); err != nil {
			s.rt.Log.Warnw("failed to publish unblocked seats", "event_id", ev.EventID, "error", err)
		}
	}
	return nil
}

// AvailableInUnit counts available seats of the event in a section; an
// empty section counts every seat.
func (s *SeatService) AvailableInUnit(ctx context.Context, eventID, sectionID string) (uint, error) {
	seats, err := s.seats.ListByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	var n uint
	for _, seat := range seats {
		if seat.IsAvailable() && (sectionID == "" || seat.SectionID == sectionID) {
			n++
		}
	}
	return n, nil
}
