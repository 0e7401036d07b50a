// Package health exposes the process's liveness/readiness surface: a plain
// polled HTTP GET, not the operator CRUD API spec.md's Non-goals exclude.
package health

import (
	"context"
	"database/sql"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Checker reports process health, grounded on original_source's
// app.main.api_health: DB reachability with a ping latency, whether the
// scheduler is currently running, and process uptime.
type Checker struct {
	db        *sql.DB
	startedAt time.Time

	schedulerRunning atomic.Bool
	bootstrapDone    atomic.Bool
}

func NewChecker(db *sql.DB) *Checker {
	return &Checker{db: db, startedAt: time.Now()}
}

// SetSchedulerRunning is called by cmd/poller once the scheduler's tick
// loop has been armed (and again, with false, on shutdown).
func (c *Checker) SetSchedulerRunning(running bool) {
	c.schedulerRunning.Store(running)
}

// SetBootstrapComplete is called once the reconciler's compiled-default
// seed/merge pass has finished; readyz reports false until then.
func (c *Checker) SetBootstrapComplete(done bool) {
	c.bootstrapDone.Store(done)
}

type livenessReport struct {
	Status            string   `json:"status"`
	DBOK              bool     `json:"db_ok"`
	DBPingMs          *float64 `json:"db_ping_ms"`
	SchedulerRunning  bool     `json:"scheduler_running"`
	UptimeSeconds     float64  `json:"uptime_seconds"`
	HostMemoryUsedPct *float64 `json:"host_memory_used_pct,omitempty"`
	HostUptimeSeconds *uint64  `json:"host_uptime_seconds,omitempty"`
}

// Liveness handles GET /healthz.
func (c *Checker) Liveness(ctx *gin.Context) {
	report := livenessReport{
		Status:           "ok",
		SchedulerRunning: c.schedulerRunning.Load(),
		UptimeSeconds:    time.Since(c.startedAt).Seconds(),
	}

	dbOK, pingMs := c.pingDB(ctx.Request.Context())
	report.DBOK = dbOK
	if dbOK {
		report.DBPingMs = &pingMs
	} else {
		report.Status = "degraded"
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx.Request.Context()); err == nil {
		report.HostMemoryUsedPct = &vm.UsedPercent
	}
	if uptime, err := host.UptimeWithContext(ctx.Request.Context()); err == nil {
		report.HostUptimeSeconds = &uptime
	}

	status := http.StatusOK
	if !report.DBOK {
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, report)
}

func (c *Checker) pingDB(ctx context.Context) (ok bool, pingMs float64) {
	if c.db == nil {
		return false, 0
	}
	start := time.Now()
	if err := c.db.PingContext(ctx); err != nil {
		return false, 0
	}
	return true, float64(time.Since(start).Microseconds()) / 1000.0
}

// Readiness handles GET /readyz: ready once the bootstrap reconciler's
// initial seed/merge pass has completed.
func (c *Checker) Readiness(ctx *gin.Context) {
	if !c.bootstrapDone.Load() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "bootstrap_complete": false})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ready", "bootstrap_complete": true})
}

// RegisterRoutes wires both endpoints onto r.
func (c *Checker) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", c.Liveness)
	r.GET("/readyz", c.Readiness)
}
