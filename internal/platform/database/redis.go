package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis once. The caller decides whether
// an unreachable server is fatal.
func NewRedisClient(ctx context.Context, cfg RedisConfig, log *zap.SugaredLogger) (*redis.Client, error) {
	log.Infow("connecting to redis", "addr", cfg.Addr, "db", cfg.DB)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	log.Info("redis connected")
	return client, nil
}
