package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usda-monitor/pollengine/internal/pkg/logger"
)

// CLI flags mirror original_source/app/smoke.py's one-off invocation mode:
// force a single report/date run (or a date-range backfill) instead of
// starting the tick loop, for operator-driven recovery.
var (
	flagReportID    = flag.String("report-id", "", "run a single report once instead of starting the scheduler")
	flagReportDate  = flag.String("report-date", "", "report date (YYYY-MM-DD) for -report-id; defaults to today")
	flagBackfillEnd = flag.String("backfill-end", "", "with -report-id, backfill every date from -report-date through this date (YYYY-MM-DD)")
)

func main() {
	flag.Parse()

	app, err := initializeApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pollengine: startup failed: %v\n", err)
		os.Exit(1)
	}
	defer app.DB.Close()
	defer app.Redis.Close()

	if err := logger.Init(logger.OptionsFromConfig(app.Config.Log)); err != nil {
		fmt.Fprintf(os.Stderr, "pollengine: logger init failed: %v\n", err)
		os.Exit(1)
	}

	if *flagReportID != "" {
		runOnce(app, *flagReportID, *flagReportDate, *flagBackfillEnd)
		return
	}

	runServer(app)
}

func runOnce(app *Application, reportID, reportDate, backfillEnd string) {
	ctx := context.Background()
	cfg, ok := app.Registry.Get(reportID)
	if !ok {
		fmt.Fprintf(os.Stderr, "pollengine: unknown report_id %q\n", reportID)
		os.Exit(1)
	}

	if backfillEnd != "" {
		loc, err := time.LoadLocation(app.Config.Timezone)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pollengine: bad timezone: %v\n", err)
			os.Exit(1)
		}
		start, err := time.ParseInLocation("2006-01-02", reportDate, loc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pollengine: bad -report-date: %v\n", err)
			os.Exit(1)
		}
		end, err := time.ParseInLocation("2006-01-02", backfillEnd, loc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pollengine: bad -backfill-end: %v\n", err)
			os.Exit(1)
		}
		inserted, skipped, err := app.Worker.RangeBackfill(ctx, cfg, start, end)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pollengine: backfill failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("backfill complete: inserted=%d skipped=%d\n", inserted, skipped)
		return
	}

	if reportDate == "" {
		ok2, err := app.Worker.Run(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pollengine: run failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("run complete: ok=%v\n", ok2)
		return
	}

	loc, err := time.LoadLocation(app.Config.Timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pollengine: bad timezone: %v\n", err)
		os.Exit(1)
	}
	forced, err := time.ParseInLocation("2006-01-02", reportDate, loc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pollengine: bad -report-date: %v\n", err)
		os.Exit(1)
	}
	ok2, err := app.Worker.RunForDate(ctx, cfg, forced)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pollengine: run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("run complete: ok=%v\n", ok2)
}

func runServer(app *Application) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Reconciler.Reconcile(ctx); err != nil {
		slog.Error("pollengine: bootstrap reconcile failed", "error", err)
		os.Exit(1)
	}
	app.Health.SetBootstrapComplete(true)

	if err := app.Scheduler.Start(); err != nil {
		slog.Error("pollengine: scheduler start failed", "error", err)
		os.Exit(1)
	}
	app.Health.SetSchedulerRunning(true)
	slog.Info("pollengine: scheduler started", "tick_interval", app.Config.Poller.TickIntervalSeconds)

	gin.SetMode(app.Config.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	app.Health.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              app.Config.Server.Address(),
		Handler:           r,
		ReadHeaderTimeout: time.Duration(app.Config.Server.ReadHeaderTimeout) * time.Second,
		IdleTimeout:       time.Duration(app.Config.Server.IdleTimeout) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("pollengine: http server error", "error", err)
		}
	}()
	slog.Info("pollengine: http server listening", "addr", srv.Addr)

	<-ctx.Done()
	slog.Info("pollengine: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("pollengine: http server shutdown error", "error", err)
	}
	app.Scheduler.Stop()
	app.Health.SetSchedulerRunning(false)
}
