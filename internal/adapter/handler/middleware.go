package handler

import (
	"crypto/subtle"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func requestLogger(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				log.Warnw("request", append(fields, "error", v.Error)...)
				return nil
			}
			log.Debugw("request", fields...)
			return nil
		},
	})
}

// adminAuth accepts requests carrying the admin key in X-API-Key.
func adminAuth(key string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup: "header:X-API-Key",
		Validator: func(got string, _ echo.Context) (bool, error) {
			return key != "" && subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1, nil
		},
	})
}

// rateLimit applies limiter per client IP. Limiter failures let the
// request through.
func rateLimit(limiter Limiter, scope string, log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limiter == nil {
			return next
		}
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			d, err := limiter.Allow(c.Request().Context(), scope+":"+ip)
			if err != nil {
				log.Warnw("rate limiter unavailable", "scope", scope, "error", err)
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, errorResponse{
					Error:   "too_many_requests",
					Message: "rate limit exceeded",
				})
			}
			return next(c)
		}
	}
}
