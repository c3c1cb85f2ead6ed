package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_engine/internal/core/domain"
)

// AvailabilityCache is a ports.AvailabilityCache shared between instances.
// Redis errors degrade to cache misses.
type AvailabilityCache struct {
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
	log    *zap.SugaredLogger
}

func NewAvailabilityCache(rdb *goredis.Client, ttl time.Duration, prefix string, log *zap.SugaredLogger) *AvailabilityCache {
	if prefix == "" {
		prefix = "avail"
	}
	return &AvailabilityCache{rdb: rdb, ttl: ttl, prefix: prefix, log: log}
}

func (c *AvailabilityCache) poolKey(poolID string) string { return c.prefix + ":pool:" + poolID }

func (c *AvailabilityCache) seatsKey(eventID string) string { return c.prefix + ":seats:" + eventID }

func (c *AvailabilityCache) get(ctx context.Context, key string, v any) bool {
	bs, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.log.Warnw("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(bs, v); err != nil {
		c.log.Warnw("cache entry unreadable", "key", key, "error", err)
		return false
	}
	return true
}

func (c *AvailabilityCache) set(ctx context.Context, key string, v any) {
	if c.ttl <= 0 {
		return
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.SetEx(ctx, key, bs, c.ttl).Err(); err != nil {
		c.log.Warnw("cache write failed", "key", key, "error", err)
	}
}

func (c *AvailabilityCache) del(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.log.Warnw("cache invalidation failed", "key", key, "error", err)
	}
}

func (c *AvailabilityCache) GetPool(ctx context.Context, poolID string) (*domain.PoolAvailability, bool) {
	var a domain.PoolAvailability
	if !c.get(ctx, c.poolKey(poolID), &a) {
		return nil, false
	}
	return &a, true
}

func (c *AvailabilityCache) SetPool(ctx context.Context, a domain.PoolAvailability) {
	c.set(ctx, c.poolKey(a.PoolID), a)
}

func (c *AvailabilityCache) InvalidatePool(ctx context.Context, poolID string) {
	c.del(ctx, c.poolKey(poolID))
}

func (c *AvailabilityCache) GetSeatMap(ctx context.Context, eventID string) ([]domain.SeatView, bool) {
	var seats []domain.SeatView
	if !c.get(ctx, c.seatsKey(eventID), &seats) {
		return nil, false
	}
	return seats, true
}

func (c *AvailabilityCache) SetSeatMap(ctx context.Context, eventID string, seats []domain.SeatView) {
	c.set(ctx, c.seatsKey(eventID), seats)
}

func (c *AvailabilityCache) InvalidateSeatMap(ctx context.Context, eventID string) {
	c.del(ctx, c.seatsKey(eventID))
}
