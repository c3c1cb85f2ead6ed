package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Conflicts []string          `json:"conflicts,omitempty"`
	Failures  []failureResponse `json:"failures,omitempty"`
}

type failureResponse struct {
	Item      reserveItem `json:"item"`
	Reason    string      `json:"reason"`
	Conflicts []string    `json:"conflicts,omitempty"`
}

var statusByError = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{domain.ErrInvalidAccessToken, http.StatusUnauthorized, "invalid_access_token"},
	{domain.ErrPoolNotFound, http.StatusNotFound, "pool_not_found"},
	{domain.ErrSeatNotFound, http.StatusNotFound, "seat_not_found"},
	{domain.ErrBlockNotFound, http.StatusNotFound, "block_not_found"},
	{domain.ErrHoldNotFound, http.StatusNotFound, "hold_not_found"},
	{domain.ErrQueueNotFound, http.StatusNotFound, "queue_not_found"},
	{domain.ErrEntryNotFound, http.StatusNotFound, "entry_not_found"},
	{domain.ErrWaitlistEntryNotFound, http.StatusNotFound, "waitlist_entry_not_found"},
	{domain.ErrHoldExpired, http.StatusGone, "hold_expired"},
	{domain.ErrQueueFull, http.StatusTooManyRequests, "queue_full"},
	{domain.ErrInsufficientCapacity, http.StatusConflict, "insufficient_capacity"},
	{domain.ErrSeatsUnavailable, http.StatusConflict, "seats_unavailable"},
	{domain.ErrHoldNotActive, http.StatusConflict, "hold_not_active"},
	{domain.ErrBelowFloor, http.StatusConflict, "below_floor"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrQueueClosed, http.StatusConflict, "queue_closed"},
	{domain.ErrNoWaitingEntries, http.StatusConflict, "no_waiting_entries"},
	{domain.ErrAlreadyExists, http.StatusConflict, "already_exists"},
	{domain.ErrContended, http.StatusServiceUnavailable, "contended"},
}

// respondError writes the status and body for err. Unknown errors are
// logged and hidden behind a 500.
func (h *Handler) respondError(c echo.Context, err error) error {
	var reservation *domain.ReservationError
	if errors.As(err, &reservation) {
		body := errorResponse{
			Error:     "reservation_failed",
			Message:   "some items are unavailable",
			Conflicts: reservation.Conflicts(),
		}
		for _, f := range reservation.Failures {
			body.Failures = append(body.Failures, failureResponse{
				Item:      toReserveItem(f.Item),
				Reason:    f.Reason,
				Conflicts: f.Conflicts,
			})
		}
		return c.JSON(http.StatusConflict, body)
	}

	var seats *domain.SeatsUnavailableError
	if errors.As(err, &seats) {
		return c.JSON(http.StatusConflict, errorResponse{
			Error:     "seats_unavailable",
			Message:   err.Error(),
			Conflicts: seats.Conflicts,
		})
	}

	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			if m.status == http.StatusServiceUnavailable {
				c.Response().Header().Set("Retry-After", "1")
			}
			return c.JSON(m.status, errorResponse{Error: m.code, Message: err.Error()})
		}
	}

	h.log.Errorw("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: msg})
}
