package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/srgjo27/ticket_engine/internal/adapter/handler"
	"github.com/srgjo27/ticket_engine/internal/adapter/messaging"
	"github.com/srgjo27/ticket_engine/internal/adapter/repository/memory"
	"github.com/srgjo27/ticket_engine/internal/adapter/repository/postgres"
	redisstore "github.com/srgjo27/ticket_engine/internal/adapter/repository/redis"
	"github.com/srgjo27/ticket_engine/internal/adapter/token"
	"github.com/srgjo27/ticket_engine/internal/core/ports"
	"github.com/srgjo27/ticket_engine/internal/core/services"
	"github.com/srgjo27/ticket_engine/internal/platform/clock"
	"github.com/srgjo27/ticket_engine/internal/platform/config"
	"github.com/srgjo27/ticket_engine/internal/platform/database"
	"github.com/srgjo27/ticket_engine/internal/platform/logger"
)

// repositories is the persistence surface every store backend provides.
type repositories struct {
	pools     ports.PoolRepository
	seats     ports.SeatRepository
	holds     ports.HoldRepository
	queues    ports.QueueRepository
	entries   ports.QueueEntryRepository
	waitlists ports.WaitlistRepository
	// ping is nil for stores without a connection.
	ping func(ctx context.Context) error
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatalw("server exited", "error", err)
	}
	log.Info("server exiting")
}

func run(cfg config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	var health []func(ctx context.Context) error

	repos, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if repos.ping != nil {
		health = append(health, repos.ping)
	}

	var (
		locker  ports.Locker            = memory.NewLocker(cfg.Retry.LockWait)
		cache   ports.AvailabilityCache = memory.NewAvailabilityCache(cfg.Cache.TTL, clk)
		limiter handler.Limiter
	)
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		locker = redisstore.NewLocker(rdb, redisstore.LockerOptions{TTL: cfg.Retry.LockTTL, Wait: cfg.Retry.LockWait}, log)
		cache = redisstore.NewAvailabilityCache(rdb, cfg.Cache.TTL, cfg.Cache.Prefix, log)
		if cfg.RateLimit.Enabled {
			limiter = redisstore.NewRateLimiter(rdb, redisstore.RateLimitOptions{
				Capacity:       cfg.RateLimit.Capacity,
				RefillTokens:   cfg.RateLimit.RefillTokens,
				RefillInterval: cfg.RateLimit.RefillInterval,
				TTL:            cfg.RateLimit.TTL,
				Prefix:         cfg.RateLimit.Prefix,
			}, clk)
		}
		health = append(health, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		log.Info("redis coordination enabled")
	}

	var (
		notifier   ports.Notifier = messaging.NewLogNotifier(log)
		events     ports.CapacityEventPublisher
		dispatcher *services.CapacityDispatcher
		publisher  *messaging.Publisher
	)
	if cfg.AMQPURL != "" {
		publisher, err = messaging.Dial(cfg.AMQPURL, log)
		if err != nil {
			return err
		}
		defer func() { _ = publisher.Close() }()
		notifier, events = publisher, publisher
		log.Info("rabbitmq messaging enabled")
	} else {
		dispatcher = services.NewCapacityDispatcher(1024, log)
		events = dispatcher
	}

	policy, err := services.ParseRequeuePolicy(cfg.Queue.RequeuePolicy)
	if err != nil {
		return err
	}
	issuer, err := token.NewJWTIssuer(cfg.JWTSecret, clk)
	if err != nil {
		return err
	}

	rt := services.Runtime{
		Clock:  clk,
		Locker: locker,
		Retry: services.RetryPolicy{
			Attempts:  cfg.Retry.Attempts,
			BaseDelay: cfg.Retry.BaseDelay,
			MaxDelay:  cfg.Retry.MaxDelay,
		},
		Log: log,
	}

	capacity := services.NewCapacityService(repos.pools, repos.holds, rt,
		services.WithCapacityCache(cache),
		services.WithCapacityEvents(events),
		services.WithConvertGrace(cfg.Holds.ConvertGrace),
	)
	seats := services.NewSeatService(repos.seats, repos.holds, rt,
		services.WithSeatCache(cache),
		services.WithSeatEvents(events),
		services.WithSeatConvertGrace(cfg.Holds.ConvertGrace),
	)
	admission := services.NewAdmissionService(repos.queues, repos.entries, issuer, rt, services.AdmissionConfig{
		SessionTTL:     cfg.Queue.SessionTTL,
		IdleTTL:        cfg.Queue.IdleTTL,
		ChallengeTTL:   cfg.Queue.ChallengeTTL,
		RequeuePolicy:  policy,
		PenaltyDelay:   cfg.Queue.PenaltyDelay,
		FingerprintKey: []byte(cfg.Queue.FingerprintKey),
		BatchSize:      cfg.Sweep.BatchSize,
	}, services.WithAdmissionNotifier(notifier))
	holds := services.NewHoldManager(capacity, seats, repos.holds, rt,
		services.WithAdmissionGate(admission),
		services.WithHoldTTL(cfg.Holds.DefaultTTL, cfg.Holds.MaxTTL),
		services.WithSweepBatch(cfg.Sweep.BatchSize),
	)
	waitlist := services.NewWaitlistService(repos.waitlists, notifier, rt,
		services.WithNotifyTTL(cfg.Waitlist.NotifyTTL),
		services.WithUnitAvailability(holds),
		services.WithWaitlistBatch(cfg.Sweep.BatchSize),
	)
	sweeper := services.NewSweeper(holds, admission, waitlist, services.SweepIntervals{
		Holds:    cfg.Sweep.HoldInterval,
		Queues:   cfg.Sweep.QueueInterval,
		Waitlist: cfg.Sweep.WaitlistInterval,
		Tick:     cfg.Sweep.TickInterval,
	}, log)

	var workers sync.WaitGroup
	bg, cancelBG := context.WithCancel(context.Background())
	defer cancelBG()

	workers.Add(1)
	go func() {
		defer workers.Done()
		sweeper.Run(bg)
	}()
	if dispatcher != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			dispatcher.Run(bg, waitlist.HandleCapacityFreed)
		}()
	} else {
		consumer := messaging.NewCapacityConsumer(cfg.AMQPURL, waitlist.HandleCapacityFreed, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			consumer.Run(bg)
		}()
	}

	h := handler.NewHandler(handler.Services{
		Capacity:  capacity,
		Seats:     seats,
		Holds:     holds,
		Admission: admission,
		Waitlist:  waitlist,
		Sweeper:   sweeper,
	}, log)
	e := handler.NewEcho(log)
	h.Register(e, handler.Options{
		AdminAPIKey: cfg.AdminAPIKey,
		JoinLimiter: limiter,
		Health: func(ctx context.Context) error {
			for _, check := range health {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         net.JoinHostPort("", cfg.Port),
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", server.Addr, "store", cfg.Store, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server...")
	case err := <-serveErr:
		if err != nil {
			cancelBG()
			workers.Wait()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	cancelBG()
	workers.Wait()
	return nil
}

// openStore returns the repositories of the configured backend and a
// func that releases it.
func openStore(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*repositories, func(), error) {
	switch cfg.Store {
	case "postgres":
		db, err := database.NewPostgresDB(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		s := postgres.NewStore(db)
		return &repositories{
			pools:     s.Pools,
			seats:     s.Seats,
			holds:     s.Holds,
			queues:    s.Queues,
			entries:   s.Entries,
			waitlists: s.Waitlists,
			ping:      db.PingContext,
		}, func() { _ = db.Close() }, nil
	case "memory", "":
		s := memory.NewStore()
		log.Warn("using in-memory store; state is lost on restart")
		return &repositories{
			pools:     s.Pools,
			seats:     s.Seats,
			holds:     s.Holds,
			queues:    s.Queues,
			entries:   s.Entries,
			waitlists: s.Waitlists,
		}, func() {}, nil
	}
	return nil, nil, errors.New("unknown store backend " + cfg.Store)
}
