package domain

import (
	"time"
)

type HoldStatus string

const (
	HoldActive    HoldStatus = "active"
	HoldConverted HoldStatus = "converted"
	HoldReleased  HoldStatus = "released"
	HoldExpired   HoldStatus = "expired"
)

type HoldKind string

const (
	HoldKindPool  HoldKind = "pool"
	HoldKindSeats HoldKind = "seats"
)

// Hold is a time-boxed provisional reservation owned by one checkout
// session. Its target is either a pool quantity or a set of seats.
type Hold struct {
	ID         string
	SessionID  string
	CustomerID string
	EventID    string
	Kind       HoldKind
	PoolID     string
	UnitID     string
	Quantity   uint
	SeatIDs    []string
	Status     HoldStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ClosedAt   *time.Time
	Version    int
}

func (h *Hold) IsActive() bool {
	return h.Status == HoldActive
}

func (h *Hold) IsTerminal() bool {
	return h.Status == HoldConverted || h.Status == HoldReleased || h.Status == HoldExpired
}

// ExpiredAt reports whether the hold is past its expiry at now.
func (h *Hold) ExpiredAt(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

// Reclaimable reports whether an active hold is past its expiry and the
// convert grace that follows it. A hold is never both Convertible and
// Reclaimable at the same instant.
func (h *Hold) Reclaimable(now time.Time, grace time.Duration) bool {
	return h.IsActive() && now.After(h.ExpiresAt.Add(grace))
}

// Convertible allows conversion within grace of ExpiresAt, to absorb the
// latency between payment capture and the convert call.
func (h *Hold) Convertible(now time.Time, grace time.Duration) bool {
	return h.IsActive() && !now.After(h.ExpiresAt.Add(grace))
}

// Keys returns the lock keys guarding this hold's inventory.
func (h *Hold) Keys() []string {
	if h.Kind == HoldKindPool {
		return []string{PoolKey(h.PoolID)}
	}
	keys := make([]string, 0, len(h.SeatIDs))
	for _, seatID := range h.SeatIDs {
		keys = append(keys, SeatKey(h.EventID, seatID))
	}
	return keys
}

// Freed describes the capacity a pool hold returns when it ends. Seat
// holds report per section from the seat records instead.
func (h *Hold) Freed() CapacityFreed {
	return CapacityFreed{EventID: h.EventID, UnitID: h.UnitID, Quantity: h.Quantity}
}

func PoolKey(poolID string) string { return "pool:" + poolID }

func SeatKey(eventID, seatID string) string { return "seat:" + eventID + ":" + seatID }

func QueueKey(queueID string) string { return "queue:" + queueID }

func WaitlistKey(eventID string) string { return "waitlist:" + eventID }
