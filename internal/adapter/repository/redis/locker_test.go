package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/platform/logger"
)

func newTestLocker(t *testing.T, opts LockerOptions) (*Locker, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	l := NewLocker(db, opts, logger.Nop())
	l.token = func() string { return "tok-1" }
	return l, mock
}

func TestLocker_AcquireSortsAndReleasesOwnedKeys(t *testing.T) {
	l, mock := newTestLocker(t, LockerOptions{TTL: 5 * time.Second})
	keys := []string{"lock:pool:p1", "lock:seat:e1:B"}

	mock.ExpectEvalSha(acquireScript.Hash(), keys, "tok-1", int64(5000)).SetVal(int64(1))
	mock.ExpectEvalSha(releaseScript.Hash(), keys, "tok-1").SetVal(int64(2))

	release, err := l.Acquire(context.Background(), "seat:e1:B", "pool:p1", "seat:e1:B")
	require.NoError(t, err)
	release()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestLocker_BusyUntilWaitRunsOut(t *testing.T) {
	l, mock := newTestLocker(t, LockerOptions{
		TTL:        time.Second,
		Wait:       20 * time.Millisecond,
		RetryEvery: 50 * time.Millisecond,
	})
	keys := []string{"lock:queue:q1"}

	mock.ExpectEvalSha(acquireScript.Hash(), keys, "tok-1", int64(1000)).SetVal(int64(0))
	mock.ExpectEvalSha(acquireScript.Hash(), keys, "tok-1", int64(1000)).SetVal(int64(0))

	release, err := l.Acquire(context.Background(), "queue:q1")
	assert.ErrorIs(t, err, domain.ErrLockBusy)
	assert.Nil(t, release)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestLocker_RedisErrorIsReturned(t *testing.T) {
	l, mock := newTestLocker(t, LockerOptions{TTL: time.Second})
	keys := []string{"lock:waitlist:e1"}

	mock.ExpectEvalSha(acquireScript.Hash(), keys, "tok-1", int64(1000)).SetErr(assert.AnError)

	_, err := l.Acquire(context.Background(), "waitlist:e1")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, domain.ErrLockBusy)
}

func TestLocker_ContextCancelledWhileWaiting(t *testing.T) {
	l, mock := newTestLocker(t, LockerOptions{
		TTL:        time.Second,
		Wait:       time.Minute,
		RetryEvery: time.Minute,
	})
	keys := []string{"lock:pool:p1"}
	mock.ExpectEvalSha(acquireScript.Hash(), keys, "tok-1", int64(1000)).SetVal(int64(0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.Acquire(ctx, "pool:p1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
