package domain

import (
	"fmt"
	"time"
)

// ReserveItem is one line of a reservation: a seat of an event, or a
// quantity from a capacity pool.
type ReserveItem struct {
	EventID  string `json:"event_id,omitempty"`
	SeatID   string `json:"seat_id,omitempty"`
	PoolID   string `json:"pool_id,omitempty"`
	Quantity uint   `json:"quantity,omitempty"`
}

func (i ReserveItem) IsSeat() bool { return i.SeatID != "" }

func (i ReserveItem) String() string {
	if i.IsSeat() {
		return fmt.Sprintf("seat %s/%s", i.EventID, i.SeatID)
	}
	return fmt.Sprintf("pool %s x%d", i.PoolID, i.Quantity)
}

type Reservation struct {
	SessionID string
	Holds     []*Hold
	ExpiresAt time.Time
}

func (r *Reservation) HoldIDs() []string {
	ids := make([]string, 0, len(r.Holds))
	for _, h := range r.Holds {
		ids = append(ids, h.ID)
	}
	return ids
}
