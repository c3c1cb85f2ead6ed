package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// NewPostgresDB opens the pool and waits for the server to answer,
// retrying while it is still starting up.
func NewPostgresDB(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	maxRetries := 10

	for i := 1; i <= maxRetries; i++ {
		log.Infow("connecting to database", "host", cfg.Host, "db", cfg.DBName, "attempt", i, "max", maxRetries)
		db, err = sql.Open("postgres", cfg.DSN())
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = db.PingContext(pingCtx)
			cancel()
		}

		if err == nil {
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(25)
			db.SetConnMaxLifetime(5 * time.Minute)
			log.Info("database connected")
			return db, nil
		}
		if db != nil {
			_ = db.Close()
		}

		log.Warnw("database not ready yet", "error", err, "retry_in", 2*time.Second)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	return nil, fmt.Errorf("connect database after %d attempts: %w", maxRetries, err)
}
