package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

type availabilityResponse struct {
	PoolID        string `json:"poolId"`
	EventID       string `json:"eventId"`
	UnitID        string `json:"unitId"`
	TotalCapacity uint   `json:"totalCapacity"`
	Sold          uint   `json:"sold"`
	Blocked       uint   `json:"blocked"`
	Held          uint   `json:"held"`
	Available     uint   `json:"available"`
}

type seatResponse struct {
	SeatID    string            `json:"seatId"`
	SectionID string            `json:"sectionId,omitempty"`
	Status    domain.SeatStatus `json:"status"`
}

func (h *Handler) PoolAvailability(c echo.Context) error {
	a, err := h.capacity.Availability(c.Request().Context(), c.Param("poolId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, availabilityResponse{
		PoolID:        a.PoolID,
		EventID:       a.EventID,
		UnitID:        a.UnitID,
		TotalCapacity: a.TotalCapacity,
		Sold:          a.Sold,
		Blocked:       a.Blocked,
		Held:          a.Held,
		Available:     a.Available,
	})
}

func (h *Handler) SeatMap(c echo.Context) error {
	views, err := h.seats.SeatMap(c.Request().Context(), c.Param("eventId"))
	if err != nil {
		return h.respondError(c, err)
	}
	seats := make([]seatResponse, 0, len(views))
	for _, v := range views {
		seats = append(seats, seatResponse{SeatID: v.SeatID, SectionID: v.SectionID, Status: v.Status})
	}
	return c.JSON(http.StatusOK, map[string]any{"eventId": c.Param("eventId"), "seats": seats})
}
