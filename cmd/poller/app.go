package main

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/usda-monitor/pollengine/internal/bootstrap"
	"github.com/usda-monitor/pollengine/internal/config"
	"github.com/usda-monitor/pollengine/internal/health"
	"github.com/usda-monitor/pollengine/internal/registry"
	"github.com/usda-monitor/pollengine/internal/scheduler"
	"github.com/usda-monitor/pollengine/internal/store"
	"github.com/usda-monitor/pollengine/internal/worker"
)

// Application is everything main.go needs to start serving and ticking.
// Declared in its own file (no build tag) so both the wireinject source
// (wire.go) and the generated injector (wire_gen.go) can refer to it.
type Application struct {
	Config     *config.Config
	DB         *sql.DB
	Redis      *redis.Client
	Registry   *registry.Registry
	Store      store.Store
	Worker     *worker.Worker
	Scheduler  *scheduler.Scheduler
	Health     *health.Checker
	Reconciler *bootstrap.Reconciler
}
