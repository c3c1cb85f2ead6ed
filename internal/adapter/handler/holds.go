package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/services"
)

type reserveItem struct {
	EventID  string `json:"eventId,omitempty"`
	SeatID   string `json:"seatId,omitempty"`
	PoolID   string `json:"poolId,omitempty"`
	Quantity uint   `json:"quantity,omitempty"`
}

func toReserveItem(i domain.ReserveItem) reserveItem {
	return reserveItem{EventID: i.EventID, SeatID: i.SeatID, PoolID: i.PoolID, Quantity: i.Quantity}
}

type reserveRequest struct {
	SessionID  string        `json:"sessionId"`
	CustomerID string        `json:"customerId"`
	Items      []reserveItem `json:"items"`
	TTLSeconds int           `json:"ttlSeconds"`
}

type holdResponse struct {
	HoldID    string            `json:"holdId"`
	SessionID string            `json:"sessionId"`
	EventID   string            `json:"eventId"`
	Kind      domain.HoldKind   `json:"kind"`
	PoolID    string            `json:"poolId,omitempty"`
	UnitID    string            `json:"unitId,omitempty"`
	Quantity  uint              `json:"quantity,omitempty"`
	SeatIDs   []string          `json:"seatIds,omitempty"`
	Status    domain.HoldStatus `json:"status"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

func toHoldResponse(h *domain.Hold) holdResponse {
	return holdResponse{
		HoldID:    h.ID,
		SessionID: h.SessionID,
		EventID:   h.EventID,
		Kind:      h.Kind,
		PoolID:    h.PoolID,
		UnitID:    h.UnitID,
		Quantity:  h.Quantity,
		SeatIDs:   h.SeatIDs,
		Status:    h.Status,
		ExpiresAt: h.ExpiresAt,
	}
}

type reserveResponse struct {
	HoldID    string         `json:"holdId"`
	HoldIDs   []string       `json:"holdIds"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Holds     []holdResponse `json:"holds"`
}

type renewRequest struct {
	TTLSeconds int `json:"ttlSeconds"`
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func (h *Handler) Reserve(c echo.Context) error {
	var req reserveRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	items := make([]domain.ReserveItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.ReserveItem{EventID: it.EventID, SeatID: it.SeatID, PoolID: it.PoolID, Quantity: it.Quantity})
	}

	res, err := h.holds.Reserve(c.Request().Context(), services.ReserveRequest{
		SessionID:   req.SessionID,
		CustomerID:  req.CustomerID,
		AccessToken: c.Request().Header.Get(accessTokenHeader),
		Items:       items,
		TTL:         seconds(req.TTLSeconds),
	})
	if err != nil {
		return h.respondError(c, err)
	}

	resp := reserveResponse{HoldIDs: res.HoldIDs(), ExpiresAt: res.ExpiresAt}
	for _, hold := range res.Holds {
		resp.Holds = append(resp.Holds, toHoldResponse(hold))
	}
	if len(resp.HoldIDs) > 0 {
		resp.HoldID = resp.HoldIDs[0]
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetHold(c echo.Context) error {
	hold, err := h.holds.Get(c.Request().Context(), c.Param("holdId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toHoldResponse(hold))
}

func (h *Handler) RenewHold(c echo.Context) error {
	var req renewRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	hold, err := h.holds.Renew(c.Request().Context(), c.Param("holdId"), seconds(req.TTLSeconds))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"holdId": hold.ID, "expiresAt": hold.ExpiresAt})
}

func (h *Handler) ConvertHold(c echo.Context) error {
	hold, err := h.holds.Convert(c.Request().Context(), c.Param("holdId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"holdId": hold.ID, "status": "sold"})
}

func (h *Handler) ReleaseHold(c echo.Context) error {
	if _, err := h.holds.Release(c.Request().Context(), c.Param("holdId")); err != nil {
		return h.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
