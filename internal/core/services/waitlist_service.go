package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
)

// UnitAvailability reports what can currently be bought in a unit.
// HoldManager implements it.
type UnitAvailability interface {
	AvailableInUnit(ctx context.Context, eventID, unitID string) (uint, error)
}

// WaitlistService hands freed inventory to the longest waiting customers
// as time-boxed offers.
type WaitlistService struct {
	entries   ports.WaitlistRepository
	notifier  ports.Notifier
	available UnitAvailability
	rt        Runtime
	notifyTTL time.Duration
	batch     int
}

type WaitlistOption func(*WaitlistService)

func WithNotifyTTL(d time.Duration) WaitlistOption {
	return func(s *WaitlistService) {
		if d > 0 {
			s.notifyTTL = d
		}
	}
}

// WithUnitAvailability bounds re-offers of unclaimed inventory by what is
// still free.
func WithUnitAvailability(a UnitAvailability) WaitlistOption {
	return func(s *WaitlistService) { s.available = a }
}

func WithWaitlistBatch(n int) WaitlistOption {
	return func(s *WaitlistService) {
		if n > 0 {
			s.batch = n
		}
	}
}

func NewWaitlistService(entries ports.WaitlistRepository, notifier ports.Notifier, rt Runtime, opts ...WaitlistOption) *WaitlistService {
	s := &WaitlistService{
		entries:   entries,
		notifier:  notifier,
		rt:        rt.withDefaults(),
		notifyTTL: 30 * time.Minute,
		batch:     100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add puts the customer on the event's waitlist. An empty unitID accepts
// any unit.
func (s *WaitlistService) Add(ctx context.Context, eventID, unitID, customerID string) (*domain.WaitlistEntry, error) {
	if eventID == "" || customerID == "" {
		return nil, fmt.Errorf("%w: event and customer are required", domain.ErrInvalidRequest)
	}
	entry := &domain.WaitlistEntry{
		ID:         uuid.NewString(),
		EventID:    eventID,
		UnitID:     unitID,
		CustomerID: customerID,
		Status:     domain.WaitlistWaiting,
		JoinedAt:   s.rt.now(),
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}
	return entry, nil
}

func (s *WaitlistService) Get(ctx context.Context, entryID string) (*domain.WaitlistEntry, error) {
	return s.entries.GetByID(ctx, entryID)
}

// NotifyOnFreedCapacity offers freed units to waiting entries: those
// asking for this unit first, then those accepting any unit, oldest first
// within each group. One entry is offered one unit.
func (s *WaitlistService) NotifyOnFreedCapacity(ctx context.Context, eventID, unitID string, quantity uint) ([]domain.WaitlistEntry, error) {
	if quantity == 0 {
		return nil, nil
	}

	var notified []domain.WaitlistEntry
	err := s.rt.locked(ctx, []string{domain.WaitlistKey(eventID)}, func(ctx context.Context) error {
		// A retried step keeps the offers an earlier attempt committed.
		want := int(quantity) - len(notified)
		if want <= 0 {
			return nil
		}
		candidates, err := s.entries.ListWaiting(ctx, eventID, unitID, want)
		if err != nil {
			return err
		}
		if unitID != "" && len(candidates) < want {
			rest, err := s.entries.ListWaiting(ctx, eventID, "", want-len(candidates))
			if err != nil {
				return err
			}
			candidates = append(candidates, rest...)
		}

		now := s.rt.now()
		expires := now.Add(s.notifyTTL)
		for i := range candidates {
			e := candidates[i]
			e.Status = domain.WaitlistNotified
			e.OfferUnitID = unitID
			e.NotifiedAt = &now
			e.NotificationExpiresAt = &expires
			if err := s.entries.Update(ctx, &e); err != nil {
				return err
			}
			notified = append(notified, e)
		}
		return nil
	})

	for _, e := range notified {
		n := domain.Notification{
			Kind:       domain.NotifyWaitlistOffer,
			CustomerID: e.CustomerID,
			EventID:    e.EventID,
			UnitID:     e.OfferUnitID,
			EntryID:    e.ID,
			ExpiresAt:  *e.NotificationExpiresAt,
			SentAt:     s.rt.now(),
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.rt.Log.Warnw("failed to send waitlist offer", "entry_id", e.ID, "customer_id", e.CustomerID, "error", err)
		}
	}
	if len(notified) > 0 {
		s.rt.Log.Infow("waitlist offers sent", "event_id", eventID, "unit_id", unitID, "freed", quantity, "notified", len(notified))
	}
	return notified, err
}

// ExpireSweep expires offers nobody acted on and returns the unclaimed
// quantity per event and unit.
func (s *WaitlistService) ExpireSweep(ctx context.Context) ([]domain.CapacityFreed, error) {
	now := s.rt.now()
	stale, err := s.entries.ListNotifiedExpired(ctx, now, s.batch)
	if err != nil {
		return nil, fmt.Errorf("list expired offers: %w", err)
	}

	type unitKey struct{ event, unit string }
	counts := make(map[unitKey]uint)
	var order []unitKey
	for i := range stale {
		id, eventID := stale[i].ID, stale[i].EventID
		var expired *domain.WaitlistEntry
		err := s.rt.locked(ctx, []string{domain.WaitlistKey(eventID)}, func(ctx context.Context) error {
			expired = nil
			e, err := s.entries.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if e.Status != domain.WaitlistNotified || e.NotificationExpiresAt == nil || !now.After(*e.NotificationExpiresAt) {
				return nil
			}
			e.Status = domain.WaitlistExpired
			if err := s.entries.Update(ctx, e); err != nil {
				return err
			}
			expired = e
			return nil
		})
		if err != nil {
			s.rt.Log.Warnw("failed to expire waitlist offer", "entry_id", id, "error", err)
			continue
		}
		if expired == nil {
			continue
		}
		k := unitKey{expired.EventID, expired.OfferUnitID}
		if _, ok := counts[k]; !ok {
			order = append(order, k)
		}
		counts[k]++
	}

	freed := make([]domain.CapacityFreed, 0, len(order))
	for _, k := range order {
		freed = append(freed, domain.CapacityFreed{EventID: k.event, UnitID: k.unit, Quantity: counts[k]})
	}
	return freed, nil
}

// Reoffer passes unclaimed offers on to the next waiting entries, capped
// by what the unit still has available.
func (s *WaitlistService) Reoffer(ctx context.Context, freed []domain.CapacityFreed) int {
	total := 0
	for _, f := range freed {
		qty := f.Quantity
		if s.available != nil {
			avail, err := s.available.AvailableInUnit(ctx, f.EventID, f.UnitID)
			if err != nil {
				s.rt.Log.Warnw("failed to read unit availability", "event_id", f.EventID, "unit_id", f.UnitID, "error", err)
				continue
			}
			qty = min(qty, avail)
		}
		if qty == 0 {
			continue
		}
		notified, err := s.NotifyOnFreedCapacity(ctx, f.EventID, f.UnitID, qty)
		if err != nil {
			s.rt.Log.Warnw("failed to re-offer waitlist capacity", "event_id", f.EventID, "unit_id", f.UnitID, "error", err)
		}
		total += len(notified)
	}
	return total
}

// MarkPurchased closes an offer the customer used.
func (s *WaitlistService) MarkPurchased(ctx context.Context, entryID string) (*domain.WaitlistEntry, error) {
	return s.transition(ctx, entryID, func(e *domain.WaitlistEntry, now time.Time) (bool, error) {
		switch e.Status {
		case domain.WaitlistPurchased:
			return false, nil
		case domain.WaitlistNotified:
			if e.NotificationExpiresAt != nil && now.After(*e.NotificationExpiresAt) {
				return false, fmt.Errorf("%w: offer expired", domain.ErrInvalidTransition)
			}
			e.Status = domain.WaitlistPurchased
			return true, nil
		}
		return false, fmt.Errorf("%w: entry is %s", domain.ErrInvalidTransition, e.Status)
	})
}

// Cancel takes the customer off the waitlist. An outstanding offer is
// passed to the next entry. Cancelling twice is a no-op.
func (s *WaitlistService) Cancel(ctx context.Context, entryID string) (*domain.WaitlistEntry, error) {
	var offered bool
	entry, err := s.transition(ctx, entryID, func(e *domain.WaitlistEntry, _ time.Time) (bool, error) {
		offered = false
		switch e.Status {
		case domain.WaitlistCancelled:
			return false, nil
		case domain.WaitlistWaiting, domain.WaitlistNotified:
			offered = e.Status == domain.WaitlistNotified
			e.Status = domain.WaitlistCancelled
			return true, nil
		}
		return false, fmt.Errorf("%w: entry is %s", domain.ErrInvalidTransition, e.Status)
	})
	if err != nil {
		return nil, err
	}
	if offered {
		s.Reoffer(ctx, []domain.CapacityFreed{{EventID: entry.EventID, UnitID: entry.OfferUnitID, Quantity: 1}})
	}
	return entry, nil
}

func (s *WaitlistService) transition(ctx context.Context, entryID string, mutate func(e *domain.WaitlistEntry, now time.Time) (bool, error)) (*domain.WaitlistEntry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	var result *domain.WaitlistEntry
	err = s.rt.locked(ctx, []string{domain.WaitlistKey(entry.EventID)}, func(ctx context.Context) error {
		e, err := s.entries.GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		changed, err := mutate(e, s.rt.now())
		if err != nil {
			return err
		}
		if changed {
			if err := s.entries.Update(ctx, e); err != nil {
				return err
			}
		}
		result = e
		return nil
	})
	return result, err
}

// HandleCapacityFreed adapts NotifyOnFreedCapacity to capacity event
// consumers.
func (s *WaitlistService) HandleCapacityFreed(ctx context.Context, ev domain.CapacityFreed) error {
	_, err := s.NotifyOnFreedCapacity(ctx, ev.EventID, ev.UnitID, ev.Quantity)
	return err
}
