package domain

import (
	"time"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHeld      SeatStatus = "held"
	SeatSold      SeatStatus = "sold"
	SeatBlocked   SeatStatus = "blocked"
)

// SeatLock is the reservation state of one individually addressable seat.
type SeatLock struct {
	EventID   string
	SeatID    string
	SectionID string
	Status    SeatStatus
	HoldID    string
	Version   int
	UpdatedAt time.Time
}

func (s *SeatLock) IsAvailable() bool {
	return s.Status == SeatAvailable
}

// OwnedBy reports whether the seat is currently held by the given hold.
// Release and expiry check ownership so a seat re-held by someone else
// after expiry is never freed by a stale hold.
func (s *SeatLock) OwnedBy(holdID string) bool {
	return s.Status == SeatHeld && s.HoldID != "" && s.HoldID == holdID
}

type SeatView struct {
	SeatID    string     `json:"seat_id"`
	SectionID string     `json:"section_id"`
	Status    SeatStatus `json:"status"`
}
