package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/platform/logger"
)

func TestRespondError(t *testing.T) {
	h := &Handler{log: logger.Nop()}
	e := echo.New()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"wrapped not found", fmt.Errorf("load: %w", domain.ErrPoolNotFound), http.StatusNotFound, "pool_not_found"},
		{"expired", domain.ErrHoldExpired, http.StatusGone, "hold_expired"},
		{"queue full", domain.ErrQueueFull, http.StatusTooManyRequests, "queue_full"},
		{"bad token", domain.ErrInvalidAccessToken, http.StatusUnauthorized, "invalid_access_token"},
		{"invalid", fmt.Errorf("%w: missing", domain.ErrInvalidRequest), http.StatusBadRequest, "invalid_request"},
		{"contended", fmt.Errorf("%w after 4 attempts", domain.ErrContended), http.StatusServiceUnavailable, "contended"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, h.respondError(c, tt.err))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error)
			if tt.wantStatus == http.StatusServiceUnavailable {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestRespondError_SeatConflicts(t *testing.T) {
	h := &Handler{log: logger.Nop()}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	err := fmt.Errorf("hold: %w", &domain.SeatsUnavailableError{EventID: "e1", Conflicts: []string{"A1", "B4"}})
	require.NoError(t, h.respondError(c, err))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"A1", "B4"}, body.Conflicts)
}
