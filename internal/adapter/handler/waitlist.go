package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type joinWaitlistRequest struct {
	EventID    string `json:"eventId"`
	UnitID     string `json:"unitId"`
	CustomerID string `json:"customerId"`
}

type waitlistResponse struct {
	EntryID        string                `json:"entryId"`
	EventID        string                `json:"eventId"`
	UnitID         string                `json:"unitId,omitempty"`
	Status         domain.WaitlistStatus `json:"status"`
	OfferUnitID    string                `json:"offerUnitId,omitempty"`
	OfferExpiresAt *time.Time            `json:"offerExpiresAt,omitempty"`
}

func toWaitlistResponse(e *domain.WaitlistEntry) waitlistResponse {
	resp := waitlistResponse{
		EntryID: e.ID,
		EventID: e.EventID,
		UnitID:  e.UnitID,
		Status:  e.Status,
	}
	if e.Status == domain.WaitlistNotified {
		resp.OfferUnitID = e.OfferUnitID
		resp.OfferExpiresAt = e.NotificationExpiresAt
	}
	return resp
}

func (h *Handler) JoinWaitlist(c echo.Context) error {
	var req joinWaitlistRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	entry, err := h.waitlist.Add(c.Request().Context(), req.EventID, req.UnitID, req.CustomerID)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toWaitlistResponse(entry))
}

func (h *Handler) GetWaitlistEntry(c echo.Context) error {
	entry, err := h.waitlist.Get(c.Request().Context(), c.Param("entryId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toWaitlistResponse(entry))
}

func (h *Handler) CancelWaitlist(c echo.Context) error {
	entry, err := h.waitlist.Cancel(c.Request().Context(), c.Param("entryId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toWaitlistResponse(entry))
}
