package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil, domain.ErrHoldNotFound))
	assert.ErrorIs(t, mapErr(sql.ErrNoRows, domain.ErrHoldNotFound), domain.ErrHoldNotFound)
	assert.ErrorIs(t, mapErr(fmt.Errorf("scan: %w", sql.ErrNoRows), domain.ErrPoolNotFound), domain.ErrPoolNotFound)
	assert.ErrorIs(t, mapErr(&pq.Error{Code: uniqueViolation}, domain.ErrPoolNotFound), domain.ErrAlreadyExists)

	other := errors.New("connection reset")
	assert.Equal(t, other, mapErr(other, domain.ErrPoolNotFound))
}

func TestNullHelpers(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, sql.NullString{String: "h1", Valid: true}, nullString("h1"))

	assert.False(t, nullTime(nil).Valid)
	now := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, now, nullTime(&now).Time)

	assert.Nil(t, timePtr(sql.NullTime{}))
	local := now.In(time.FixedZone("WIB", 7*3600))
	got := timePtr(sql.NullTime{Time: local, Valid: true})
	if assert.NotNil(t, got) {
		assert.Equal(t, time.UTC, got.Location())
		assert.True(t, got.Equal(now))
	}
}
