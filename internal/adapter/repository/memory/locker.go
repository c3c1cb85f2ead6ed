package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

// Locker is an in-process ports.Locker. Each key is a one-slot semaphore;
// Acquire waits up to maxWait for every key, taken in sorted order.
type Locker struct {
	mu      sync.Mutex
	slots   map[string]*slot
	maxWait time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocker(maxWait time.Duration) *Locker {
	if maxWait <= 0 {
		maxWait = 2 * time.Second
	}
	return &Locker{slots: make(map[string]*slot), maxWait: maxWait}
}

func (l *Locker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Locker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *Locker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = sortedKeys(keys)

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	held := make([]*slot, 0, len(keys))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
			l.unref(keys[i], held[i])
		}
	}

	for _, key := range keys {
		s := l.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, s)
		case <-ctx.Done():
			l.unref(key, s)
			releaseHeld()
			return nil, ctx.Err()
		case <-timer.C:
			l.unref(key, s)
			releaseHeld()
			return nil, domain.ErrLockBusy
		}
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}

func sortedKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
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
