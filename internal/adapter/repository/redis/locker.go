// Package redis shares engine coordination state between instances:
// entity locks, the availability cache and the join rate limiter.
package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

// acquireScript takes every key or none. Each key stores the owner token
// with a lease so a crashed holder cannot block the key forever.
var acquireScript = goredis.NewScript(`
	for _, key in ipairs(KEYS) do
		if redis.call('EXISTS', key) == 1 then
			return 0
		end
	end
	for _, key in ipairs(KEYS) do
		redis.call('SET', key, ARGV[1], 'PX', ARGV[2])
	end
	return 1
`)

// releaseScript deletes only the keys still owned by the token.
var releaseScript = goredis.NewScript(`
	local released = 0
	for _, key in ipairs(KEYS) do
		if redis.call('GET', key) == ARGV[1] then
			released = released + redis.call('DEL', key)
		end
	end
	return released
`)

type LockerOptions struct {
	// TTL is the lease on every acquired key.
	TTL time.Duration
	// Wait bounds how long Acquire keeps retrying a busy key set.
	Wait       time.Duration
	RetryEvery time.Duration
	Prefix     string
}

// Locker is a ports.Locker shared by every instance using the same Redis.
type Locker struct {
	rdb   *goredis.Client
	opts  LockerOptions
	log   *zap.SugaredLogger
	token func() string
}

func NewLocker(rdb *goredis.Client, opts LockerOptions, log *zap.SugaredLogger) *Locker {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 2 * time.Second
	}
	if opts.RetryEvery <= 0 {
		opts.RetryEvery = 10 * time.Millisecond
	}
	if opts.Prefix == "" {
		opts.Prefix = "lock"
	}
	return &Locker{rdb: rdb, opts: opts, log: log, token: uuid.NewString}
}

func (l *Locker) keys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l.opts.Prefix+":"+k)
	}
	sort.Strings(out)
	return out
}

func (l *Locker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	redisKeys := l.keys(keys)
	token := l.token()
	deadline := time.Now().Add(l.opts.Wait)

	for {
		ok, err := acquireScript.Run(ctx, l.rdb, redisKeys, token, l.opts.TTL.Milliseconds()).Int()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok == 1 {
			return func() { l.release(ctx, redisKeys, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, domain.ErrLockBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.opts.RetryEvery):
		}
	}
}

func (l *Locker) release(ctx context.Context, keys []string, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.rdb, keys, token).Int()
	if err != nil {
		l.log.Warnw("failed to release lock", "keys", keys, "error", err)
		return
	}
	if n < len(keys) {
		// The lease ran out while the work was still in progress.
		l.log.Warnw("lock lease expired before release", "keys", keys, "released", n)
	}
}
