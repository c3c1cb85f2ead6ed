package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string

	// Store selects the persistence backend: "memory" or "postgres".
	Store    string
	Database DatabaseConfig
	Redis    RedisConfig
	AMQPURL  string

	JWTSecret   string
	AdminAPIKey string

	Holds     HoldConfig
	Queue     QueueConfig
	Waitlist  WaitlistConfig
	Retry     RetryConfig
	Sweep     SweepConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type HoldConfig struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	// ConvertGrace absorbs the gap between payment capture and conversion.
	ConvertGrace time.Duration
}

type QueueConfig struct {
	SessionTTL    time.Duration
	IdleTTL       time.Duration
	ChallengeTTL  time.Duration
	RequeuePolicy string
	PenaltyDelay  time.Duration
	// FingerprintKey keys the BLAKE2b hash of join fingerprints.
	FingerprintKey string
}

type WaitlistConfig struct {
	NotifyTTL time.Duration
}

type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	LockWait  time.Duration
	LockTTL   time.Duration
}

type SweepConfig struct {
	HoldInterval     time.Duration
	QueueInterval    time.Duration
	WaitlistInterval time.Duration
	TickInterval     time.Duration
	BatchSize        int
}

type CacheConfig struct {
	TTL    time.Duration
	Prefix string
}

type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

// Load reads .env when present, then the process environment. Every
// setting has a default so a bare process starts with the in-memory store.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Env:      envStr("APP_ENV", "dev"),
		Port:     envStr("APP_PORT", "8080"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		Store:    strings.ToLower(envStr("STORE", "memory")),
		Database: DatabaseConfig{
			Host:     envStr("DB_HOST", "localhost"),
			Port:     envStr("DB_PORT", "5432"),
			User:     envStr("DB_USER", "postgres"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   envStr("DB_NAME", "ticket_engine"),
		},
		Redis: RedisConfig{
			Enabled:  envBool("REDIS_ENABLED", false),
			Addr:     redisAddr(),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		},
		AMQPURL:     os.Getenv("RABBITMQ_URL"),
		JWTSecret:   envStr("JWT_SECRET", "dev-secret-change-me"),
		AdminAPIKey: envStr("ADMIN_API_KEY", "dev-admin-key"),
		Holds: HoldConfig{
			DefaultTTL:   envDur("HOLD_DEFAULT_TTL", 10*time.Minute),
			MaxTTL:       envDur("HOLD_MAX_TTL", 30*time.Minute),
			ConvertGrace: envDur("HOLD_CONVERT_GRACE", 10*time.Second),
		},
		Queue: QueueConfig{
			SessionTTL:     envDur("QUEUE_SESSION_TTL", 10*time.Minute),
			IdleTTL:        envDur("QUEUE_IDLE_TTL", 15*time.Minute),
			ChallengeTTL:   envDur("QUEUE_CHALLENGE_TTL", 2*time.Minute),
			RequeuePolicy:  envStr("QUEUE_REQUEUE_POLICY", "tail"),
			PenaltyDelay:   envDur("QUEUE_PENALTY_DELAY", time.Minute),
			FingerprintKey: envStr("QUEUE_FINGERPRINT_KEY", "dev-fingerprint-key"),
		},
		Waitlist: WaitlistConfig{
			NotifyTTL: envDur("WAITLIST_NOTIFY_TTL", 30*time.Minute),
		},
		Retry: RetryConfig{
			Attempts:  envInt("RETRY_ATTEMPTS", 4),
			BaseDelay: envDur("RETRY_BASE_DELAY", 10*time.Millisecond),
			MaxDelay:  envDur("RETRY_MAX_DELAY", 250*time.Millisecond),
			LockWait:  envDur("LOCK_WAIT", 2*time.Second),
			LockTTL:   envDur("LOCK_TTL", 5*time.Second),
		},
		Sweep: SweepConfig{
			HoldInterval:     envDur("SWEEP_HOLD_INTERVAL", 5*time.Second),
			QueueInterval:    envDur("SWEEP_QUEUE_INTERVAL", 5*time.Second),
			WaitlistInterval: envDur("SWEEP_WAITLIST_INTERVAL", 30*time.Second),
			TickInterval:     envDur("QUEUE_TICK_INTERVAL", 2*time.Second),
			BatchSize:        envInt("SWEEP_BATCH_SIZE", 100),
		},
		Cache: CacheConfig{
			TTL:    envDur("CACHE_TTL", 5*time.Second),
			Prefix: envStr("CACHE_PREFIX", "avail"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        envBool("RATE_LIMIT_ENABLED", true),
			Capacity:       envInt("RATE_LIMIT_CAPACITY", 10),
			RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
			RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
			TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
			Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		},
	}

	if cfg.Retry.Attempts < 1 {
		cfg.Retry.Attempts = 1
	}
	if cfg.RateLimit.Capacity < 1 {
		cfg.RateLimit.Capacity = 1
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	if minTTL := 5 * cfg.RateLimit.RefillInterval; cfg.RateLimit.TTL < minTTL {
		cfg.RateLimit.TTL = minTTL
	}
	return cfg
}

func redisAddr() string {
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	if host != "" && port != "" {
		return host + ":" + port
	}
	return envStr("REDIS_ADDR", "localhost:6379")
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
