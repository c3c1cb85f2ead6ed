package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/ticket_engine/internal/adapter/handler"
	"github.com/srgjo27/ticket_engine/internal/adapter/messaging"
	"github.com/srgjo27/ticket_engine/internal/adapter/repository/memory"
	redisstore "github.com/srgjo27/ticket_engine/internal/adapter/repository/redis"
	"github.com/srgjo27/ticket_engine/internal/adapter/token"
	"github.com/srgjo27/ticket_engine/internal/core/services"
	"github.com/srgjo27/ticket_engine/internal/platform/clock"
	"github.com/srgjo27/ticket_engine/internal/platform/logger"
)

const adminKey = "admin-key"

var start = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

type api struct {
	e     *echo.Echo
	clock *clock.FakeClock
}

func newAPI(t *testing.T, opts handler.Options) *api {
	t.Helper()
	clk := clock.NewFake(start)
	store := memory.NewStore()
	log := logger.Nop()
	rt := services.Runtime{
		Clock:  clk,
		Locker: memory.NewLocker(time.Second),
		Retry:  services.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Log:    log,
	}

	issuer, err := token.NewJWTIssuer("test-secret", clk)
	require.NoError(t, err)
	notifier := messaging.NewLogNotifier(log)

	capacity := services.NewCapacityService(store.Pools, store.Holds, rt)
	seats := services.NewSeatService(store.Seats, store.Holds, rt)
	admission := services.NewAdmissionService(store.Queues, store.Entries, issuer, rt,
		services.AdmissionConfig{FingerprintKey: []byte("fp-key")},
		services.WithAdmissionNotifier(notifier),
	)
	holds := services.NewHoldManager(capacity, seats, store.Holds, rt, services.WithAdmissionGate(admission))
	waitlist := services.NewWaitlistService(store.Waitlists, notifier, rt, services.WithUnitAvailability(holds))
	sweeper := services.NewSweeper(holds, admission, waitlist, services.SweepIntervals{}, log)

	h := handler.NewHandler(handler.Services{
		Capacity:  capacity,
		Seats:     seats,
		Holds:     holds,
		Admission: admission,
		Waitlist:  waitlist,
		Sweeper:   sweeper,
	}, log)

	if opts.AdminAPIKey == "" {
		opts.AdminAPIKey = adminKey
	}
	e := handler.NewEcho(log)
	h.Register(e, opts)
	return &api{e: e, clock: clk}
}

type call struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func (a *api) do(t *testing.T, c call) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func (a *api) admin(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return a.do(t, call{method: method, path: path, body: body, headers: map[string]string{"X-API-Key": adminKey}})
}

func TestHealthz(t *testing.T) {
	a := newAPI(t, handler.Options{})
	rec, body := a.do(t, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	down := newAPI(t, handler.Options{Health: func(context.Context) error { return errors.New("db down") }})
	rec, body = down.do(t, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["status"])
}

func TestAdminRequiresKey(t *testing.T) {
	a := newAPI(t, handler.Options{})
	rec, _ := a.do(t, call{
		method:  http.MethodPost,
		path:    "/admin/pools",
		body:    map[string]any{"eventId": "e1", "unitId": "ga", "totalCapacity": 10},
		headers: map[string]string{"X-API-Key": "wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPoolReservationFlow(t *testing.T) {
	a := newAPI(t, handler.Options{})

	rec, pool := a.admin(t, http.MethodPost, "/admin/pools", map[string]any{"eventId": "e1", "unitId": "ga", "totalCapacity": 10})
	require.Equal(t, http.StatusCreated, rec.Code)
	poolID := pool["poolId"].(string)

	rec, first := a.do(t, call{method: http.MethodPost, path: "/holds/reserve", body: map[string]any{
		"sessionId": "s1",
		"items":     []map[string]any{{"poolId": poolID, "quantity": 6}},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)
	holdID := first["holdId"].(string)
	assert.Len(t, first["holdIds"], 1)

	rec, failed := a.do(t, call{method: http.MethodPost, path: "/holds/reserve", body: map[string]any{
		"sessionId": "s2",
		"items":     []map[string]any{{"poolId": poolID, "quantity": 5}},
	}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "reservation_failed", failed["error"])
	assert.Len(t, failed["failures"], 1)

	rec, avail := a.do(t, call{method: http.MethodGet, path: "/pools/" + poolID + "/availability"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 6, avail["held"])
	assert.EqualValues(t, 4, avail["available"])

	rec, converted := a.do(t, call{method: http.MethodPost, path: "/holds/" + holdID + "/convert"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sold", converted["status"])

	rec, _ = a.do(t, call{method: http.MethodGet, path: "/holds/missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSeatConflictsAreListed(t *testing.T) {
	a := newAPI(t, handler.Options{})

	rec, _ := a.admin(t, http.MethodPost, "/admin/events/e1/seats", map[string]any{"sectionId": "front", "seatIds": []string{"A1", "A2"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = a.do(t, call{method: http.MethodPost, path: "/holds/reserve", body: map[string]any{
		"sessionId": "s1",
		"items":     []map[string]any{{"eventId": "e1", "seatId": "A1"}},
	}})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := a.do(t, call{method: http.MethodPost, path: "/holds/reserve", body: map[string]any{
		"sessionId": "s2",
		"items": []map[string]any{
			{"eventId": "e1", "seatId": "A1"},
			{"eventId": "e1", "seatId": "A2"},
		},
	}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []any{"A1"}, body["conflicts"])

	rec, seatMap := a.do(t, call{method: http.MethodGet, path: "/events/e1/seats"})
	require.Equal(t, http.StatusOK, rec.Code)
	seats := seatMap["seats"].([]any)
	require.Len(t, seats, 2)
	statuses := map[string]string{}
	for _, s := range seats {
		m := s.(map[string]any)
		statuses[m["seatId"].(string)] = m["status"].(string)
	}
	assert.Equal(t, map[string]string{"A1": "held", "A2": "available"}, statuses)
}

func TestExpiredHoldIsGone(t *testing.T) {
	a := newAPI(t, handler.Options{})
	_, pool := a.admin(t, http.MethodPost, "/admin/pools", map[string]any{"eventId": "e1", "unitId": "ga", "totalCapacity": 2})

	rec, res := a.do(t, call{method: http.MethodPost, path: "/holds/reserve", body: map[string]any{
		"sessionId":  "s1",
		"items":      []map[string]any{{"poolId": pool["poolId"], "quantity": 1}},
		"ttlSeconds": 60,
	}})
	require.Equal(t, http.StatusCreated, rec.Code)

	a.clock.Advance(2 * time.Minute)
	rec, _ = a.do(t, call{method: http.MethodPost, path: "/holds/" + res["holdId"].(string) + "/convert"})
	assert.Equal(t, http.StatusGone, rec.Code)

	rec, sweep := a.admin(t, http.MethodPost, "/admin/sweeps/holds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, sweep["expired"])
}

func TestQueueAdmissionGatesReservations(t *testing.T) {
	a := newAPI(t, handler.Options{})

	_, pool := a.admin(t, http.MethodPost, "/admin/pools", map[string]any{"eventId": "e1", "unitId": "ga", "totalCapacity": 10})
	rec, queue := a.admin(t, http.MethodPost, "/admin/queues", map[string]any{"eventId": "e1", "openAt": start, "limit": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	queueID := queue["queueId"].(string)
	assert.Equal(t, "active", queue["status"])

	rec, first := a.do(t, call{method: http.MethodPost, path: "/queue/join", body: map[string]any{"queueId": queueID, "customerId": "c1", "fingerprint": "fp-1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, first["position"])
	assert.Equal(t, "waiting", first["status"])
	entryID, sessionID := first["entryId"].(string), first["sessionId"].(string)

	_, second := a.do(t, call{method: http.MethodPost, path: "/queue/join", body: map[string]any{"queueId": queueID, "customerId": "c2"}})
	assert.EqualValues(t, 2, second["position"])

	reserve := call{method: http.MethodPost, path: "/holds/reserve", body: map[string]any{
		"sessionId": sessionID,
		"items":     []map[string]any{{"poolId": pool["poolId"], "quantity": 2}},
	}}
	rec, _ = a.do(t, reserve)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, activated := a.admin(t, http.MethodPost, "/admin/queues/"+queueID+"/activate-next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entryID, activated["entryId"])

	rec, _ = a.admin(t, http.MethodPost, "/admin/queues/"+queueID+"/activate-next", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, pos := a.do(t, call{method: http.MethodGet, path: "/queue/" + entryID + "/position"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", pos["status"])
	accessToken, _ := pos["accessToken"].(string)
	require.NotEmpty(t, accessToken)

	reserve.headers = map[string]string{"X-Access-Token": accessToken}
	rec, _ = a.do(t, reserve)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = a.do(t, call{method: http.MethodPost, path: "/queue/sessions/" + sessionID + "/complete"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, done := a.do(t, call{
		method:  http.MethodPost,
		path:    "/queue/sessions/" + sessionID + "/complete",
		headers: map[string]string{"X-Access-Token": accessToken},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", done["status"])
}

func TestWaitlistJoinAndCancel(t *testing.T) {
	a := newAPI(t, handler.Options{})

	rec, entry := a.do(t, call{method: http.MethodPost, path: "/waitlist/join", body: map[string]any{"eventId": "e1", "unitId": "ga", "customerId": "c1"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "waiting", entry["status"])

	rec, _ = a.do(t, call{method: http.MethodPost, path: "/waitlist/join", body: map[string]any{"unitId": "ga"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/waitlist/" + entry["entryId"].(string)
	rec, cancelled := a.do(t, call{method: http.MethodDelete, path: path})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", cancelled["status"])

	rec, _ = a.admin(t, http.MethodPost, "/admin"+path+"/purchased", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type stubLimiter struct {
	decision redisstore.Decision
	err      error
	keys     []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (redisstore.Decision, error) {
	s.keys = append(s.keys, key)
	return s.decision, s.err
}

func TestJoinRateLimit(t *testing.T) {
	limiter := &stubLimiter{decision: redisstore.Decision{Allowed: false, Limit: 10, RetryAfter: 750 * time.Millisecond}}
	a := newAPI(t, handler.Options{JoinLimiter: limiter})

	rec, body := a.do(t, call{method: http.MethodPost, path: "/queue/join", body: map[string]any{"queueId": "q1", "customerId": "c1"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "too_many_requests", body["error"])
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	require.Len(t, limiter.keys, 1)
	assert.Contains(t, limiter.keys[0], "join:")

	// A failing limiter lets the request reach the queue.
	limiter.err = errors.New("redis down")
	rec, _ = a.do(t, call{method: http.MethodPost, path: "/queue/join", body: map[string]any{"queueId": "q1", "customerId": "c1"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
