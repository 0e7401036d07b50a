// Package scheduler drives the recurring tick that decides, per report, when
// its next poll is due and dispatches the worker run that services it.
package scheduler

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/collection"
	"golang.org/x/sync/semaphore"

	"github.com/usda-monitor/pollengine/internal/clock"
	"github.com/usda-monitor/pollengine/internal/domain"
	"github.com/usda-monitor/pollengine/internal/registry"
)

// Runner is the subset of worker.Worker the scheduler dispatches against.
// Declared locally so scheduler doesn't import worker's Fetcher/store
// plumbing, only the one entry point it actually drives.
type Runner interface {
	Run(ctx context.Context, cfg domain.ReportConfig) (bool, error)
}

const tickTimerName = "scheduler-tick"

// Scheduler holds one SchedulingState per report and fires a tick on a
// go-zero timing wheel, mirroring the teacher's TimingWheelService wrapper.
// Grounded in original_source's scheduler.py SchedulerService: a single
// AsyncIOScheduler-style tick loop recomputes next_due per report and hands
// off eligible reports to bounded concurrent worker runs.
type Scheduler struct {
	registry *registry.Registry
	runner   Runner
	clock    *clock.Clock
	cfg      SchedulerConfig

	tw   *collection.TimingWheel
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
	stop sync.Once

	mu    sync.Mutex
	state map[string]*domain.SchedulingState
}

// SchedulerConfig is the tick-loop tuning pulled out of config.PollerConfig,
// kept separate so scheduler doesn't import the config package directly.
type SchedulerConfig struct {
	TickInterval  time.Duration
	MaxConcurrent int64
}

// New returns a Scheduler ready to Start. Every report begins with a zero
// SchedulingState, making it immediately eligible on the first tick.
func New(reg *registry.Registry, runner Runner, clk *clock.Clock, cfg SchedulerConfig) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Scheduler{
		registry: reg,
		runner:   runner,
		clock:    clk,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		state:    make(map[string]*domain.SchedulingState),
	}
}

// Start arms the recurring tick. A tick that is still running when the next
// one fires is skipped rather than queued, matching a timing wheel's
// self-rescheduling timer instead of a fixed-rate ticker.
func (s *Scheduler) Start() error {
	tw, err := collection.NewTimingWheel(time.Second, 3600, func(_, value any) {
		fn, ok := value.(func())
		if !ok {
			return
		}
		fn()
	})
	if err != nil {
		return err
	}
	s.tw = tw
	s.scheduleNextTick()
	return nil
}

func (s *Scheduler) scheduleNextTick() {
	if err := s.tw.SetTimer(tickTimerName, s.tick, s.cfg.TickInterval); err != nil {
		slog.Error("scheduler: failed to arm tick timer", "error", err)
	}
}

// Stop halts further ticks and waits for in-flight worker runs to finish.
func (s *Scheduler) Stop() {
	s.stop.Do(func() {
		if s.tw != nil {
			s.tw.Stop()
		}
	})
	s.wg.Wait()
}

// tick recomputes every report's eligibility and dispatches the ones due,
// then re-arms itself for the next interval.
func (s *Scheduler) tick() {
	defer s.scheduleNextTick()

	now := s.clock.Now()
	for _, cfg := range s.registry.Reports() {
		state := s.stateFor(cfg.ReportID)
		if now.Before(state.NextDue) {
			continue
		}
		state.NextDue = s.nextDue(cfg, now, state.ErrorCount)
		s.dispatch(cfg, state)
	}
}

func (s *Scheduler) stateFor(reportID string) *domain.SchedulingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[reportID]
	if !ok {
		st = &domain.SchedulingState{}
		s.state[reportID] = st
	}
	return st
}

// dispatch runs one report under the concurrency semaphore in its own
// goroutine, so a slow fetch on one report never delays other reports'
// eligibility checks on the next tick. When the pool is full the goroutine
// waits for a free slot; the tick loop itself never blocks on it.
func (s *Scheduler) dispatch(cfg domain.ReportConfig, state *domain.SchedulingState) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		s.runReport(cfg, state)
	}()
}

func (s *Scheduler) runReport(cfg domain.ReportConfig, state *domain.SchedulingState) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ok, err := s.runner.Run(ctx, cfg)
	if err != nil {
		slog.Error("scheduler: worker run errored", "report_id", cfg.ReportID, "error", err)
		s.mu.Lock()
		state.ErrorCount++
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	if ok {
		state.ErrorCount = 0
	} else {
		state.ErrorCount++
	}
	s.mu.Unlock()
}

// nextDue implements scheduler.py's _next_due: pick the cadence for whether
// now falls inside the report's polling window, then widen it by exponential
// error backoff if the report has been failing, then add jitter.
func (s *Scheduler) nextDue(cfg domain.ReportConfig, now time.Time, errorCount int) time.Time {
	base := float64(cfg.Polling.OutsideCadenceSec)
	if isWithinWindow(cfg, now) {
		base = float64(cfg.Polling.InsideCadenceSec)
	}

	if errorCount > 0 {
		backoff := float64(cfg.Polling.ErrorBackoffBaseSec) * math.Pow(2, float64(errorCount-1))
		maxBackoff := float64(cfg.Polling.ErrorBackoffMaxSec)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		if backoff > base {
			base = backoff
		}
	}

	jitter := 0
	if cfg.Polling.JitterSec > 0 {
		jitter = rand.Intn(cfg.Polling.JitterSec + 1)
	}
	return now.Add(time.Duration(base)*time.Second + time.Duration(jitter)*time.Second)
}

// isWithinWindow reports whether now falls inside one of cfg's polling
// windows, evaluated against now's own date.
func isWithinWindow(cfg domain.ReportConfig, now time.Time) bool {
	windows := make([]clock.Window, 0, len(cfg.Windows))
	for _, w := range cfg.Windows {
		windows = append(windows, clock.Window{
			Start: clock.ClockTime{Hour: w.Start.Hour, Minute: w.Start.Minute, Second: w.Start.Second},
			End:   clock.ClockTime{Hour: w.End.Hour, Minute: w.End.Minute, Second: w.End.Second},
		})
	}
	return clock.InWindow(now, windows)
}
