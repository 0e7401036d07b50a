package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/usda-monitor/pollengine/internal/alert"
	"github.com/usda-monitor/pollengine/internal/bootstrap"
	"github.com/usda-monitor/pollengine/internal/cache"
	"github.com/usda-monitor/pollengine/internal/clock"
	"github.com/usda-monitor/pollengine/internal/config"
	"github.com/usda-monitor/pollengine/internal/fetch"
	"github.com/usda-monitor/pollengine/internal/health"
	"github.com/usda-monitor/pollengine/internal/lock"
	"github.com/usda-monitor/pollengine/internal/notify"
	"github.com/usda-monitor/pollengine/internal/registry"
	"github.com/usda-monitor/pollengine/internal/scheduler"
	"github.com/usda-monitor/pollengine/internal/store"
	"github.com/usda-monitor/pollengine/internal/util/logredact"
	"github.com/usda-monitor/pollengine/internal/worker"
)

// instanceID distinguishes this process's held locks from a sibling
// process's in the Redis lock backend's value payload.
var instanceID = uuid.NewString()

func provideConfig() (*config.Config, error) {
	return config.Load()
}

func provideDB(cfg *config.Config) (*sql.DB, error) {
	dsn := cfg.Database.DSNWithTimezone(cfg.Timezone)
	slog.Debug("pollengine: opening database connection", "dsn", logredact.RedactText(dsn))
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(cfg.Database.ConnMaxIdleTimeMinutes) * time.Minute)
	return db, nil
}

func provideRedis(cfg *config.Config) *redis.Client {
	slog.Debug("pollengine: connecting to redis", "target",
		logredact.RedactText(fmt.Sprintf("addr=%s password=%s db=%d", cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)))
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Address(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  time.Duration(cfg.Redis.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.Redis.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Redis.WriteTimeoutSeconds) * time.Second,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
}

func provideClock(cfg *config.Config) (*clock.Clock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	return clock.New(loc), nil
}

func provideFetcher(cfg *config.Config) *fetch.Fetcher {
	return fetch.New(cfg.Fetch)
}

func provideLocker(cfg *config.Config, db *sql.DB, redisClient *redis.Client) (lock.Locker, error) {
	return lock.New(cfg.Poller.LockBackend, db, redisClient, instanceID)
}

func providePostgresStore(db *sql.DB) *store.PostgresStore {
	return store.NewPostgresStore(db)
}

func provideCachedStore(cfg *config.Config, pg *store.PostgresStore) (*cache.CachedStore, error) {
	return cache.NewCachedStore(pg, cache.Config{
		NumCounters: int64(cfg.Cache.NumCounters),
		MaxCostMB:   cfg.Cache.MaxCostMB,
		BufferItems: cfg.Cache.BufferItems,
	})
}

func provideNotifier(cfg *config.Config) *notify.LogNotifier {
	return &notify.LogNotifier{SenderAddress: cfg.Alert.SenderAddress}
}

func provideAlertCoordinator(cfg *config.Config, cachedStore *cache.CachedStore, notifier *notify.LogNotifier) *alert.Coordinator {
	return alert.New(cachedStore, notifier, cfg.Poller.ConsecutiveFailuresThreshold)
}

func provideRegistry() *registry.Registry {
	return registry.New()
}

func provideWorker(fetcher *fetch.Fetcher, cachedStore *cache.CachedStore, locker lock.Locker, clk *clock.Clock, coordinator *alert.Coordinator, notifier *notify.LogNotifier) *worker.Worker {
	return worker.New(fetcher, cachedStore, locker, clk, coordinator, notifier, registry.APIBase)
}

func provideSchedulerConfig(cfg *config.Config) scheduler.SchedulerConfig {
	return scheduler.SchedulerConfig{
		TickInterval:  time.Duration(cfg.Poller.TickIntervalSeconds) * time.Second,
		MaxConcurrent: int64(cfg.Poller.MaxConcurrency),
	}
}

func provideScheduler(reg *registry.Registry, w *worker.Worker, clk *clock.Clock, schedCfg scheduler.SchedulerConfig) *scheduler.Scheduler {
	return scheduler.New(reg, w, clk, schedCfg)
}

func provideHealthChecker(db *sql.DB) *health.Checker {
	return health.NewChecker(db)
}

func provideReconciler(cachedStore *cache.CachedStore, reg *registry.Registry) *bootstrap.Reconciler {
	return bootstrap.New(cachedStore, reg)
}
