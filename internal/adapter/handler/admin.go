package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/services"
)

func (h *Handler) registerAdmin(g *echo.Group) {
	g.POST("/pools", h.CreatePool)
	g.GET("/pools/:poolId", h.GetPool)
	g.POST("/pools/:poolId/adjust", h.AdjustCapacity)
	g.POST("/pools/:poolId/blocks", h.BlockCapacity)
	g.DELETE("/blocks/:blockId", h.UnblockCapacity)

	g.POST("/events/:eventId/seats", h.CreateSeats)
	g.POST("/events/:eventId/seats/block", h.BlockSeats)
	g.POST("/events/:eventId/seats/unblock", h.UnblockSeats)

	g.POST("/queues", h.CreateQueue)
	g.GET("/queues/:queueId", h.GetQueue)
	g.POST("/queues/:queueId/pause", h.PauseQueue)
	g.POST("/queues/:queueId/resume", h.ResumeQueue)
	g.POST("/queues/:queueId/close", h.CloseQueue)
	g.POST("/queues/:queueId/limit", h.SetQueueLimit)
	g.POST("/queues/:queueId/activate-next", h.ActivateNext)
	g.POST("/queue-entries/:entryId/activate", h.ActivateEntry)
	g.POST("/queue/sessions/:sessionId/expire", h.ExpireSession)

	g.POST("/waitlist/:entryId/purchased", h.MarkWaitlistPurchased)

	g.POST("/sweeps/holds", h.SweepHolds)
	g.POST("/sweeps/queues", h.SweepQueues)
	g.POST("/sweeps/waitlist", h.SweepWaitlist)
	g.POST("/sweeps/tick", h.TickQueues)
}

type createPoolRequest struct {
	EventID       string `json:"eventId"`
	UnitID        string `json:"unitId"`
	TotalCapacity uint   `json:"totalCapacity"`
}

type poolResponse struct {
	PoolID        string `json:"poolId"`
	EventID       string `json:"eventId"`
	UnitID        string `json:"unitId"`
	TotalCapacity uint   `json:"totalCapacity"`
	Sold          uint   `json:"sold"`
	Blocked       uint   `json:"blocked"`
	Held          uint   `json:"held"`
	Available     uint   `json:"available"`
}

func toPoolResponse(p *domain.CapacityPool) poolResponse {
	return poolResponse{
		PoolID:        p.ID,
		EventID:       p.EventID,
		UnitID:        p.UnitID,
		TotalCapacity: p.TotalCapacity,
		Sold:          p.Sold,
		Blocked:       p.Blocked,
		Held:          p.Held,
		Available:     p.Available(),
	}
}

type adjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type blockRequest struct {
	Quantity uint   `json:"quantity"`
	Reason   string `json:"reason"`
}

type blockResponse struct {
	BlockID  string `json:"blockId"`
	PoolID   string `json:"poolId"`
	Quantity uint   `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
	Active   bool   `json:"active"`
}

func toBlockResponse(b *domain.CapacityBlock) blockResponse {
	return blockResponse{BlockID: b.ID, PoolID: b.PoolID, Quantity: b.Quantity, Reason: b.Reason, Active: b.Active}
}

type seatsRequest struct {
	SectionID string   `json:"sectionId"`
	SeatIDs   []string `json:"seatIds"`
}

type createQueueRequest struct {
	EventID           string     `json:"eventId"`
	OpenAt            time.Time  `json:"openAt"`
	CloseAt           *time.Time `json:"closeAt"`
	SaleStartAt       time.Time  `json:"saleStartAt"`
	Limit             uint       `json:"limit"`
	ChallengeRequired bool       `json:"challengeRequired"`
}

type queueResponse struct {
	QueueID           string             `json:"queueId"`
	EventID           string             `json:"eventId"`
	Status            domain.QueueStatus `json:"status"`
	OpenAt            time.Time          `json:"openAt"`
	CloseAt           *time.Time         `json:"closeAt,omitempty"`
	SaleStartAt       time.Time          `json:"saleStartAt"`
	Limit             uint               `json:"limit"`
	ActiveCount       uint               `json:"activeCount"`
	LastPosition      uint64             `json:"lastPosition"`
	ChallengeRequired bool               `json:"challengeRequired"`
	AvgServiceSeconds float64            `json:"avgServiceSeconds"`
}

func toQueueResponse(q *domain.Queue) queueResponse {
	return queueResponse{
		QueueID:           q.ID,
		EventID:           q.EventID,
		Status:            q.Status,
		OpenAt:            q.Schedule.OpenAt,
		CloseAt:           q.Schedule.CloseAt,
		SaleStartAt:       q.Schedule.SaleStartAt,
		Limit:             q.ConcurrentActiveLimit,
		ActiveCount:       q.ActiveCount,
		LastPosition:      q.LastPosition,
		ChallengeRequired: q.ChallengeRequired,
		AvgServiceSeconds: q.AvgServiceSeconds,
	}
}

type limitRequest struct {
	Limit uint `json:"limit"`
}

func (h *Handler) CreatePool(c echo.Context) error {
	var req createPoolRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	pool, err := h.capacity.CreatePool(c.Request().Context(), req.EventID, req.UnitID, req.TotalCapacity)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toPoolResponse(pool))
}

func (h *Handler) GetPool(c echo.Context) error {
	pool, err := h.capacity.GetPool(c.Request().Context(), c.Param("poolId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPoolResponse(pool))
}

func (h *Handler) AdjustCapacity(c echo.Context) error {
	var req adjustRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	pool, err := h.capacity.AdjustCapacity(c.Request().Context(), c.Param("poolId"), req.Delta, req.Reason)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toPoolResponse(pool))
}

func (h *Handler) BlockCapacity(c echo.Context) error {
	var req blockRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	block, err := h.capacity.Block(c.Request().Context(), c.Param("poolId"), req.Quantity, req.Reason)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toBlockResponse(block))
}

func (h *Handler) UnblockCapacity(c echo.Context) error {
	block, err := h.capacity.Unblock(c.Request().Context(), c.Param("blockId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toBlockResponse(block))
}

func (h *Handler) CreateSeats(c echo.Context) error {
	var req seatsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	seats, err := h.seats.CreateSeats(c.Request().Context(), c.Param("eventId"), req.SectionID, req.SeatIDs)
	if err != nil {
		return h.respondError(c, err)
	}
	out := make([]seatResponse, 0, len(seats))
	for _, s := range seats {
		out = append(out, seatResponse{SeatID: s.SeatID, SectionID: s.SectionID, Status: s.Status})
	}
	return c.JSON(http.StatusCreated, map[string]any{"eventId": c.Param("eventId"), "seats": out})
}

func (h *Handler) BlockSeats(c echo.Context) error {
	var req seatsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	if err := h.seats.BlockSeats(c.Request().Context(), c.Param("eventId"), req.SeatIDs); err != nil {
		return h.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UnblockSeats(c echo.Context) error {
	var req seatsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	if err := h.seats.UnblockSeats(c.Request().Context(), c.Param("eventId"), req.SeatIDs); err != nil {
		return h.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateQueue(c echo.Context) error {
	var req createQueueRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	saleStart := req.SaleStartAt
	if saleStart.IsZero() {
		saleStart = req.OpenAt
	}
	q, err := h.admission.CreateQueue(c.Request().Context(), services.CreateQueueRequest{
		EventID: req.EventID,
		Schedule: domain.Schedule{
			OpenAt:      req.OpenAt,
			CloseAt:     req.CloseAt,
			SaleStartAt: saleStart,
		},
		Limit:             req.Limit,
		ChallengeRequired: req.ChallengeRequired,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toQueueResponse(q))
}

func (h *Handler) GetQueue(c echo.Context) error {
	q, err := h.admission.GetQueue(c.Request().Context(), c.Param("queueId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toQueueResponse(q))
}

func (h *Handler) PauseQueue(c echo.Context) error {
	return h.queueOp(c, h.admission.Pause)
}

func (h *Handler) ResumeQueue(c echo.Context) error {
	return h.queueOp(c, h.admission.Resume)
}

func (h *Handler) CloseQueue(c echo.Context) error {
	return h.queueOp(c, h.admission.Close)
}

func (h *Handler) queueOp(c echo.Context, op func(ctx context.Context, queueID string) (*domain.Queue, error)) error {
	q, err := op(c.Request().Context(), c.Param("queueId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toQueueResponse(q))
}

func (h *Handler) SetQueueLimit(c echo.Context) error {
	var req limitRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	q, err := h.admission.SetLimit(c.Request().Context(), c.Param("queueId"), req.Limit)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toQueueResponse(q))
}

func (h *Handler) ActivateNext(c echo.Context) error {
	entry, err := h.admission.ActivateNext(c.Request().Context(), c.Param("queueId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) ActivateEntry(c echo.Context) error {
	entry, err := h.admission.ActivateEntry(c.Request().Context(), c.Param("entryId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) ExpireSession(c echo.Context) error {
	entry, err := h.admission.ExpireSession(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) MarkWaitlistPurchased(c echo.Context) error {
	entry, err := h.waitlist.MarkPurchased(c.Request().Context(), c.Param("entryId"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, toWaitlistResponse(entry))
}

func (h *Handler) SweepHolds(c echo.Context) error {
	res := h.sweeper.SweepHolds(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]int{"scanned": res.Scanned, "expired": res.Expired, "failed": res.Failed})
}

func (h *Handler) SweepQueues(c echo.Context) error {
	res := h.sweeper.SweepQueues(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]int{"expired": res.Expired, "activated": res.Activated})
}

func (h *Handler) SweepWaitlist(c echo.Context) error {
	expired, reoffered := h.sweeper.SweepWaitlist(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]int{"expired": expired, "reoffered": reoffered})
}

func (h *Handler) TickQueues(c echo.Context) error {
	res := h.sweeper.TickQueues(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]int{"opened": res.Opened, "closed": res.Closed, "activated": res.Activated})
}
