// Package handler exposes the engine over HTTP with echo.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	redisstore "github.com/srgjo27/ticket_engine/internal/adapter/repository/redis"
	"github.com/srgjo27/ticket_engine/internal/core/services"
)

const accessTokenHeader = "X-Access-Token"

// Limiter decides whether one more request under key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (redisstore.Decision, error)
}

type Services struct {
	Capacity  *services.CapacityService
	Seats     *services.SeatService
	Holds     *services.HoldManager
	Admission *services.AdmissionService
	Waitlist  *services.WaitlistService
	Sweeper   *services.Sweeper
}

type Options struct {
	AdminAPIKey string
	// JoinLimiter throttles queue joins per client IP. Nil disables it.
	JoinLimiter Limiter
	// Health reports backing store reachability for /healthz.
	Health func(ctx context.Context) error
}

type Handler struct {
	capacity  *services.CapacityService
	seats     *services.SeatService
	holds     *services.HoldManager
	admission *services.AdmissionService
	waitlist  *services.WaitlistService
	sweeper   *services.Sweeper
	log       *zap.SugaredLogger
}

func NewHandler(s Services, log *zap.SugaredLogger) *Handler {
	return &Handler{
		capacity:  s.Capacity,
		seats:     s.Seats,
		holds:     s.Holds,
		admission: s.Admission,
		waitlist:  s.Waitlist,
		sweeper:   s.Sweeper,
		log:       log,
	}
}

// NewEcho builds the echo instance with recovery and request logging.
func NewEcho(log *zap.SugaredLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(log))
	return e
}

func (h *Handler) Register(e *echo.Echo, opts Options) {
	e.GET("/healthz", health(opts.Health))

	q := e.Group("/queue")
	q.POST("/join", h.JoinQueue, rateLimit(opts.JoinLimiter, "join", h.log))
	q.GET("/:entryId/position", h.QueuePosition)
	q.POST("/:entryId/challenge/pass", h.PassChallenge)
	q.POST("/:entryId/challenge/fail", h.FailChallenge)
	q.POST("/sessions/:sessionId/complete", h.CompleteSession)

	holds := e.Group("/holds")
	holds.POST("/reserve", h.Reserve)
	holds.GET("/:holdId", h.GetHold)
	holds.POST("/:holdId/renew", h.RenewHold)
	holds.POST("/:holdId/convert", h.ConvertHold)
	holds.DELETE("/:holdId", h.ReleaseHold)

	wl := e.Group("/waitlist")
	wl.POST("/join", h.JoinWaitlist)
	wl.GET("/:entryId", h.GetWaitlistEntry)
	wl.DELETE("/:entryId", h.CancelWaitlist)

	e.GET("/pools/:poolId/availability", h.PoolAvailability)
	e.GET("/events/:eventId/seats", h.SeatMap)

	h.registerAdmin(e.Group("/admin", adminAuth(opts.AdminAPIKey)))
}

func health(check func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
