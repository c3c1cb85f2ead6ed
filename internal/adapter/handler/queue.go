package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/services"
)

type joinQueueRequest struct {
	QueueID     string `json:"queueId"`
	CustomerID  string `json:"customerId"`
	Fingerprint string `json:"fingerprint"`
}

type entryResponse struct {
	EntryID     string             `json:"entryId"`
	QueueID     string             `json:"queueId"`
	SessionID   string             `json:"sessionId"`
	Position    uint64             `json:"position"`
	Status      domain.EntryStatus `json:"status"`
	AccessToken string             `json:"accessToken,omitempty"`
	ExpiresAt   *time.Time         `json:"expiresAt,omitempty"`
}

func toEntryResponse(e *domain.QueueEntry) entryResponse {
	resp := entryResponse{
		EntryID:   e.ID,
		QueueID:   e.QueueID,
		SessionID: e.SessionID,
		Position:  e.Position,
		Status:    e.Status,
	}
	if e.Status == domain.EntryActive {
		resp.AccessToken = e.AccessToken
		resp.ExpiresAt = e.ExpiresAt
	}
	return resp
}

type positionResponse struct {
	EntryID              string             `json:"entryId"`
	Position             uint64             `json:"position"`
	Ahead                int                `json:"ahead"`
	EstimatedWaitSeconds int64              `json:"estimatedWaitSeconds"`
	Status               domain.EntryStatus `json:"status"`
	AccessToken          string             `json:"accessToken,omitempty"`
	ExpiresAt            *time.Time         `json:"expiresAt,omitempty"`
}

func (h *Handler) JoinQueue(c echo.Context) error {
	var req joinQueueRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	entry, err := h.admission.Join(c.Request().Context(), services.JoinRequest{
		QueueID:     req.QueueID,
		CustomerID:  req.CustomerID,
		Fingerprint: req.Fingerprint,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toEntryResponse(entry))
}

// QueuePosition doubles as the entry's heartbeat. Once the entry is
// admitted the response carries the access token.
func (h *Handler) QueuePosition(c echo.Context) error {
	ctx := c.Request().Context()
	info, err := h.admission.Position(ctx, c.Param("entryId"))
	if err != nil {
		return h.respondError(c, err)
	}
	resp := positionResponse{
		EntryID:              info.EntryID,
		Position:             info.Position,
		Ahead:                info.Ahead,
		EstimatedWaitSeconds: info.EstimatedWaitSeconds,
		Status:               info.Status,
	}
	if info.Status == domain.EntryActive {
		entry, err := h.admission.GetEntry(ctx, info.EntryID)
		if err != nil {
			return h.respondError(c, err)
		}
		resp.AccessToken = entry.AccessToken
		resp.ExpiresAt = entry.ExpiresAt
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) PassChallenge(c echo.Context) error {
	entry, err := h.admission.PassChallenge(c.Request().Context(), c.Param("entryId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) FailChallenge(c echo.Context) error {
	entry, err := h.admission.FailChallenge(c.Request().Context(), c.Param("entryId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toEntryResponse(entry))
}

// CompleteSession ends an admitted session. The caller proves ownership
// with the session's access token.
func (h *Handler) CompleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("sessionId")
	entry, err := h.admission.ValidateAccessToken(ctx, c.Request().Header.Get(accessTokenHeader))
	if err != nil {
		return h.respondError(c, err)
	}
	if entry.SessionID != sessionID {
		return h.respondError(c, domain.ErrInvalidAccessToken)
	}
	entry, err = h.admission.CompleteSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			return h.respondError(c, domain.ErrInvalidAccessToken)
		}
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]domain.EntryStatus{"status": entry.Status})
}
