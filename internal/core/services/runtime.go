package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
	"github.com/srgjo27/ticket_engine/internal/platform/clock"
	"github.com/srgjo27/ticket_engine/internal/platform/logger"
)

// RetryPolicy bounds how often a contended atomic update is retried
// before the caller gets domain.ErrContended.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  4,
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  250 * time.Millisecond,
	}
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrLockBusy)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff(attempt)):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", domain.ErrContended, attempts, err)
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	// up to 50% jitter so colliding callers spread out
	return d/2 + rand.N(d/2+1)
}

// Runtime carries what every service needs to mutate entities safely.
type Runtime struct {
	Clock  clock.Clock
	Locker ports.Locker
	Retry  RetryPolicy
	Log    *zap.SugaredLogger
}

func (rt Runtime) withDefaults() Runtime {
	if rt.Clock == nil {
		rt.Clock = clock.Real()
	}
	if rt.Retry.Attempts == 0 {
		rt.Retry = DefaultRetryPolicy()
	}
	if rt.Log == nil {
		rt.Log = logger.Nop()
	}
	return rt
}

func (rt Runtime) now() time.Time { return rt.Clock.Now() }

// locked acquires every key, runs fn, and releases. Busy locks and lost
// version races restart the whole step under the retry policy, so fn must
// re-read whatever it validates.
func (rt Runtime) locked(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	keys = uniqueSorted(keys)
	return rt.Retry.Do(ctx, func(ctx context.Context) error {
		release, err := rt.Locker.Acquire(ctx, keys...)
		if err != nil {
			return err
		}
		defer release()
		return fn(ctx)
	})
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// dedupe keeps the first occurrence of each non-empty id, preserving order.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type nopCache struct{}

func (nopCache) GetPool(context.Context, string) (*domain.PoolAvailability, bool) { return nil, false }
func (nopCache) SetPool(context.Context, domain.PoolAvailability)                 {}
func (nopCache) InvalidatePool(context.Context, string)                           {}
func (nopCache) GetSeatMap(context.Context, string) ([]domain.SeatView, bool)     { return nil, false }
func (nopCache) SetSeatMap(context.Context, string, []domain.SeatView)            {}
func (nopCache) InvalidateSeatMap(context.Context, string)                        {}

type nopPublisher struct{}

func (nopPublisher) PublishCapacityFreed(context.Context, domain.CapacityFreed) error { return nil }
