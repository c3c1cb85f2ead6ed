package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/srgjo27/ticket_engine/internal/platform/clock"
)

// tokenBucketScript refills whole intervals since the last refill, then
// takes one token if there is one.
var tokenBucketScript = goredis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

type RateLimitOptions struct {
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	RetryAfter time.Duration
}

// RateLimiter is a token bucket per key kept in Redis.
type RateLimiter struct {
	rdb   *goredis.Client
	opts  RateLimitOptions
	clock clock.Clock
}

func NewRateLimiter(rdb *goredis.Client, opts RateLimitOptions, c clock.Clock) *RateLimiter {
	if opts.Capacity < 1 {
		opts.Capacity = 1
	}
	if opts.RefillTokens < 1 {
		opts.RefillTokens = 1
	}
	if opts.RefillInterval <= 0 {
		opts.RefillInterval = time.Second
	}
	if opts.TTL < 5*opts.RefillInterval {
		opts.TTL = 5 * opts.RefillInterval
	}
	if opts.Prefix == "" {
		opts.Prefix = "rl"
	}
	if c == nil {
		c = clock.Real()
	}
	return &RateLimiter{rdb: rdb, opts: opts, clock: c}
}

func (l *RateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	args := []any{
		l.clock.Now().UnixMilli(),
		int64(l.opts.Capacity),
		int64(l.opts.RefillTokens),
		l.opts.RefillInterval.Milliseconds(),
		int64(l.opts.TTL / time.Second),
	}
	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{l.opts.Prefix + ":" + key}, args...).Int64Slice()
	if err != nil {
		return Decision{Allowed: true, Limit: l.opts.Capacity}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(vals) != 3 {
		return Decision{Allowed: true, Limit: l.opts.Capacity}, fmt.Errorf("rate limit %s: unexpected reply of %d values", key, len(vals))
	}
	return Decision{
		Allowed:    vals[0] == 1,
		Limit:      l.opts.Capacity,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}
