package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/ticket_engine/internal/adapter/repository/memory"
	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

func TestLocker_BusyKeyTimesOut(t *testing.T) {
	l := memory.NewLocker(20 * time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "pool:a")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "pool:b", "pool:a")
	assert.ErrorIs(t, err, domain.ErrLockBusy)

	// pool:b was given back when pool:a could not be taken.
	releaseB, err := l.Acquire(ctx, "pool:b")
	require.NoError(t, err)
	releaseB()

	release()
	release()

	again, err := l.Acquire(ctx, "pool:a")
	require.NoError(t, err)
	again()
}

func TestLocker_HonoursContext(t *testing.T) {
	l := memory.NewLocker(time.Second)
	release, err := l.Acquire(context.Background(), "queue:q")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "queue:q")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_MutualExclusion(t *testing.T) {
	l := memory.NewLocker(time.Second)
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys := []string{"seat:e:A1", "seat:e:A2"}
			if i%2 == 0 {
				keys = []string{"seat:e:A2", "seat:e:A1", "seat:e:A1"}
			}
			release, err := l.Acquire(context.Background(), keys...)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}
