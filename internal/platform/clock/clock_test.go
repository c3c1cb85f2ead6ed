package clock_test

import (
	"testing"
	"time"

	"github.com/srgjo27/ticket_engine/internal/platform/clock"
	"github.com/stretchr/testify/assert"
)

func TestFakeClock_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)

	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	later := start.Add(time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestRealClock_IsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, clock.Real().Now().Location())
}
