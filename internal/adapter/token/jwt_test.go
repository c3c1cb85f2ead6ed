package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/ticket_engine/internal/adapter/token"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
	"github.com/srgjo27/ticket_engine/internal/platform/clock"
)

func TestJWTIssuer_RoundTrip(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer, err := token.NewJWTIssuer("secret", clk)
	require.NoError(t, err)

	raw, err := issuer.Issue(ports.AccessClaims{
		EntryID:   "entry-1",
		QueueID:   "queue-1",
		SessionID: "session-1",
		ExpiresAt: clk.Now().Add(10 * time.Minute),
	})
	require.NoError(t, err)

	claims, err := issuer.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "entry-1", claims.EntryID)
	assert.Equal(t, "queue-1", claims.QueueID)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.True(t, claims.ExpiresAt.Equal(clk.Now().Add(10*time.Minute)))
}

func TestJWTIssuer_RejectsExpired(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer, err := token.NewJWTIssuer("secret", clk)
	require.NoError(t, err)

	raw, err := issuer.Issue(ports.AccessClaims{EntryID: "entry-1", ExpiresAt: clk.Now().Add(time.Minute)})
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = issuer.Verify(raw)
	assert.Error(t, err)
}

func TestJWTIssuer_RejectsForeignSecret(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	a, _ := token.NewJWTIssuer("secret-a", clk)
	b, _ := token.NewJWTIssuer("secret-b", clk)

	raw, err := a.Issue(ports.AccessClaims{EntryID: "entry-1", ExpiresAt: clk.Now().Add(time.Minute)})
	require.NoError(t, err)

	_, err = b.Verify(raw)
	assert.Error(t, err)
	_, err = a.Verify("not-a-token")
	assert.Error(t, err)
}

func TestNewJWTIssuer_EmptySecret(t *testing.T) {
	_, err := token.NewJWTIssuer("", nil)
	assert.Error(t, err)
}
