//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/usda-monitor/pollengine/internal/cache"
	"github.com/usda-monitor/pollengine/internal/fetch"
	"github.com/usda-monitor/pollengine/internal/notify"
	"github.com/usda-monitor/pollengine/internal/scheduler"
	"github.com/usda-monitor/pollengine/internal/store"
	"github.com/usda-monitor/pollengine/internal/worker"
)

func initializeApplication() (*Application, error) {
	wire.Build(
		provideConfig,
		provideDB,
		provideRedis,
		provideClock,
		provideFetcher,
		provideLocker,
		providePostgresStore,
		provideCachedStore,
		provideNotifier,
		provideAlertCoordinator,
		provideRegistry,
		provideWorker,
		provideSchedulerConfig,
		provideScheduler,
		provideHealthChecker,
		provideReconciler,
		wire.Bind(new(store.Store), new(*cache.CachedStore)),
		wire.Bind(new(worker.Fetcher), new(*fetch.Fetcher)),
		wire.Bind(new(scheduler.Runner), new(*worker.Worker)),
		wire.Bind(new(notify.Notifier), new(*notify.LogNotifier)),
		wire.Struct(new(Application), "*"),
	)
	return nil, nil
}
