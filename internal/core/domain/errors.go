package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrSeatsUnavailable     = errors.New("seats unavailable")
	ErrHoldNotFound         = errors.New("hold not found")
	ErrHoldExpired          = errors.New("hold expired")
	ErrHoldNotActive        = errors.New("hold is not active")
	ErrContended            = errors.New("contended: retry the operation")
	ErrQueueFull            = errors.New("queue admission limit reached")
	ErrInvalidAccessToken   = errors.New("invalid access token")
	ErrBelowFloor           = errors.New("capacity below sold and blocked floor")

	ErrPoolNotFound          = errors.New("pool not found")
	ErrSeatNotFound          = errors.New("seat not found")
	ErrBlockNotFound         = errors.New("block not found")
	ErrQueueNotFound         = errors.New("queue not found")
	ErrEntryNotFound         = errors.New("queue entry not found")
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	ErrInvalidTransition     = errors.New("invalid state transition")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrQueueClosed           = errors.New("queue is not accepting entries")
	ErrNoWaitingEntries      = errors.New("no eligible waiting entries")
	ErrAlreadyExists         = errors.New("already exists")

	// ErrVersionConflict and ErrLockBusy are retried inside the engine and
	// surface to callers as ErrContended.
	ErrVersionConflict = errors.New("version conflict")
	ErrLockBusy        = errors.New("lock busy")
)

// SeatsUnavailableError lists exactly the requested seats that could not
// be held, so the caller can deselect only those.
type SeatsUnavailableError struct {
	EventID   string
	Conflicts []string
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable for event %s: %s", e.EventID, strings.Join(e.Conflicts, ","))
}

func (e *SeatsUnavailableError) Is(target error) bool {
	return target == ErrSeatsUnavailable
}

// ItemFailure describes one reservation item that could not be held.
type ItemFailure struct {
	Item      ReserveItem `json:"item"`
	Reason    string      `json:"reason"`
	Conflicts []string    `json:"conflicts,omitempty"`
	// Err is the cause errors.Is matches through ReservationError.
	Err error `json:"-"`
}

// ReservationError is returned by a multi-item reserve that was rolled
// back. Failures enumerates every item that was unavailable.
type ReservationError struct {
	Failures []ItemFailure
}

func (e *ReservationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Item.String()+": "+f.Reason)
	}
	return "reservation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the cause of every failure to errors.Is and errors.As.
func (e *ReservationError) Unwrap() []error {
	var errs []error
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// Conflicts returns every conflicting seat id across the failures.
func (e *ReservationError) Conflicts() []string {
	var out []string
	for _, f := range e.Failures {
		out = append(out, f.Conflicts...)
	}
	return out
}
