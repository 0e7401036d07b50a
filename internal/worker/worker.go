// Package worker runs one attempt of one report's fetch/parse/dedupe/persist
// pipeline, the unit of work the scheduler dispatches on every tick.
//
// Grounded in original_source's workers/base.py BaseWorker.run(): acquire
// the cross-process lock, create a waiting_for_publication run, search
// backward across candidate report dates until a date with data is found (or
// exhaust the window), parse and hash that date's payloads, skip a version
// already recorded under the same hash, otherwise persist a new one, notify
// subscribers, and always release the lock.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/usda-monitor/pollengine/internal/alert"
	"github.com/usda-monitor/pollengine/internal/clock"
	"github.com/usda-monitor/pollengine/internal/domain"
	"github.com/usda-monitor/pollengine/internal/fetch"
	"github.com/usda-monitor/pollengine/internal/hash"
	"github.com/usda-monitor/pollengine/internal/lock"
	"github.com/usda-monitor/pollengine/internal/notify"
	"github.com/usda-monitor/pollengine/internal/parse"
	"github.com/usda-monitor/pollengine/internal/perr"
	"github.com/usda-monitor/pollengine/internal/store"
)

// errNotYetPublished is an internal sentinel: a strategy recognized the
// source as reachable but found no row for the candidate date yet. It never
// escapes Worker.Run as an error — it collapses into waiting_for_publication
// or holiday_or_no_report, same as an empty JSON payload does for the
// generic strategies.
var errNotYetPublished = errors.New("worker: not yet published")

// Fetcher is the subset of *fetch.Fetcher's behavior Worker depends on,
// broken out as an interface so tests can substitute a canned responder
// instead of hitting the network.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Result, error)
}

// Worker executes one report's poll attempt against its configured
// endpoints, store, lock backend, and notification sink.
type Worker struct {
	fetcher  Fetcher
	store    store.Store
	locker   lock.Locker
	clock    *clock.Clock
	alert    *alert.Coordinator
	notifier notify.Notifier
	apiBase  string
}

// New builds a Worker. apiBase is the USDA Market News API root used to
// resolve templated (non-absolute-URL) endpoints.
func New(fetcher Fetcher, st store.Store, locker lock.Locker, clk *clock.Clock, coordinator *alert.Coordinator, notifier notify.Notifier, apiBase string) *Worker {
	return &Worker{
		fetcher:  fetcher,
		store:    st,
		locker:   locker,
		clock:    clk,
		alert:    coordinator,
		notifier: notifier,
		apiBase:  apiBase,
	}
}

// Run executes one poll attempt for cfg against the current date. It returns
// an error only for conditions the scheduler should count toward its own
// error-backoff bookkeeping (lock backend failures, store failures); a
// fetch/parse failure inside the attempt itself is recorded on the run and
// reported via the return value's ok=false, err=nil shape — mirroring the
// distinction base.py draws between raising (programmer error) and the
// worker's own bool return (poll outcome).
func (w *Worker) Run(ctx context.Context, cfg domain.ReportConfig) (ok bool, err error) {
	return w.run(ctx, cfg, w.clock.Now())
}

// RunForDate re-runs cfg's pipeline pinned to a single explicit report date,
// skipping the backward date-search entirely. Used by cmd/poller's one-off
// mode when -report-date is given without -backfill-end.
func (w *Worker) RunForDate(ctx context.Context, cfg domain.ReportConfig, reportDate time.Time) (ok bool, err error) {
	return w.runForDate(ctx, cfg, reportDate)
}

func (w *Worker) run(ctx context.Context, cfg domain.ReportConfig, now time.Time) (bool, error) {
	acquired, err := w.locker.TryAcquire(ctx, cfg.ReportID)
	if err != nil {
		return false, fmt.Errorf("acquire lock for %s: %w", cfg.ReportID, err)
	}
	if !acquired {
		slog.Debug("worker: lock busy, skipping tick", "report_id", cfg.ReportID)
		return true, nil
	}
	defer func() {
		if err := w.locker.Release(ctx, cfg.ReportID); err != nil {
			slog.Error("worker: release lock failed", "report_id", cfg.ReportID, "error", err)
		}
	}()

	run := &domain.ReportRun{
		ReportID:     cfg.ReportID,
		State:        domain.RunStateWaitingForPublication,
		Attempt:      1,
		RunStartedAt: now,
	}
	if err := w.store.CreateRun(ctx, run); err != nil {
		return false, fmt.Errorf("create run for %s: %w", cfg.ReportID, err)
	}

	strat := strategyFor(cfg.ReportID)
	today := clock.Today(now)
	searchDays := cfg.DateSearchWindowDays
	if searchDays <= 0 {
		searchDays = 1
	}

	var (
		matchedDate time.Time
		matched     bool
		fields      map[string]any
		endpoints   []fetchedEndpoint
		urls        []string
	)

	for offset := 0; offset < searchDays; offset++ {
		candidate := today.AddDate(0, 0, -offset)
		dateStr := clock.DateString(candidate)

		eps, candidateURLs, ferr := w.fetchAll(ctx, cfg, dateStr)
		if ferr != nil {
			w.failRun(ctx, run, ferr)
			return false, nil
		}
		if !strat.hasPublished(eps) {
			continue
		}

		parsed, perrErr := strat.extract(cfg.Schema, eps, dateStr)
		if errors.Is(perrErr, errNotYetPublished) {
			break
		}
		if perrErr != nil {
			w.failRun(ctx, run, perrErr)
			return false, nil
		}

		matchedDate, matched, fields, endpoints, urls = candidate, true, parsed, eps, candidateURLs
		break
	}

	if !matched {
		state := domain.RunStateWaitingForPublication
		if clock.IsWeekend(today) {
			state = domain.RunStateHolidayOrNoReport
		}
		w.finishRun(ctx, run, today, state)
		if state == domain.RunStateHolidayOrNoReport {
			w.alert.ClearFailure(ctx, cfg.ReportID)
		}
		return true, nil
	}

	return w.persist(ctx, cfg, run, matchedDate, fields, endpoints, urls)
}

func (w *Worker) runForDate(ctx context.Context, cfg domain.ReportConfig, reportDate time.Time) (bool, error) {
	acquired, err := w.locker.TryAcquire(ctx, cfg.ReportID)
	if err != nil {
		return false, fmt.Errorf("acquire lock for %s: %w", cfg.ReportID, err)
	}
	if !acquired {
		return true, nil
	}
	defer func() {
		if err := w.locker.Release(ctx, cfg.ReportID); err != nil {
			slog.Error("worker: release lock failed", "report_id", cfg.ReportID, "error", err)
		}
	}()

	run := &domain.ReportRun{
		ReportID:     cfg.ReportID,
		State:        domain.RunStateWaitingForPublication,
		Attempt:      1,
		RunStartedAt: w.clock.Now(),
	}
	if err := w.store.CreateRun(ctx, run); err != nil {
		return false, fmt.Errorf("create run for %s: %w", cfg.ReportID, err)
	}

	dateStr := clock.DateString(reportDate)
	strat := strategyFor(cfg.ReportID)
	endpoints, urls, ferr := w.fetchAll(ctx, cfg, dateStr)
	if ferr != nil {
		w.failRun(ctx, run, ferr)
		return false, nil
	}
	if !strat.hasPublished(endpoints) {
		w.finishRun(ctx, run, reportDate, domain.RunStateWaitingForPublication)
		return true, nil
	}
	fields, perrErr := strat.extract(cfg.Schema, endpoints, dateStr)
	if errors.Is(perrErr, errNotYetPublished) {
		w.finishRun(ctx, run, reportDate, domain.RunStateWaitingForPublication)
		return true, nil
	}
	if perrErr != nil {
		w.failRun(ctx, run, perrErr)
		return false, nil
	}
	return w.persist(ctx, cfg, run, reportDate, fields, endpoints, urls)
}

// persist hashes the matched date's payloads, skips creating a new version
// when that hash is already recorded for the date, otherwise inserts it,
// finalizes the run, clears the alert state, and notifies subscribers.
func (w *Worker) persist(ctx context.Context, cfg domain.ReportConfig, run *domain.ReportRun, reportDate time.Time, fields map[string]any, endpoints []fetchedEndpoint, urls []string) (bool, error) {
	payloads := make([][]map[string]any, len(endpoints))
	for i, e := range endpoints {
		payloads[i] = e.rows
	}
	payloadHash := hash.Payload(payloads)
	run.PayloadHash = payloadHash

	existing, err := w.store.VersionsForDate(ctx, cfg.ReportID, reportDate)
	if err != nil {
		return false, fmt.Errorf("load existing versions for %s: %w", cfg.ReportID, err)
	}
	for _, v := range existing {
		if v.PayloadHash == payloadHash {
			w.finishRun(ctx, run, reportDate, domain.RunStatePublishedNoChange)
			w.alert.ClearFailure(ctx, cfg.ReportID)
			return true, nil
		}
	}

	rawPayload, _ := json.Marshal(map[string]any{"payloads": payloads, "urls": urls})
	version := &domain.ReportVersion{
		ReportID:     cfg.ReportID,
		ReportDate:   reportDate,
		PayloadHash:  payloadHash,
		ParsedFields: fields,
		RawPayload:   rawPayload,
		SourceURLs:   urls,
	}
	inserted, err := w.store.InsertVersion(ctx, version)
	if err != nil {
		return false, fmt.Errorf("insert version for %s: %w", cfg.ReportID, err)
	}
	if !inserted {
		// Lost a race against another process inserting the same triple
		// between our VersionsForDate read and this insert.
		w.finishRun(ctx, run, reportDate, domain.RunStatePublishedNoChange)
		w.alert.ClearFailure(ctx, cfg.ReportID)
		return true, nil
	}

	w.finishRun(ctx, run, reportDate, domain.RunStatePublishedNew)
	w.alert.ClearFailure(ctx, cfg.ReportID)

	w.sendReportEmail(ctx, cfg, reportDate, fields, urls)
	return true, nil
}

func (w *Worker) sendReportEmail(ctx context.Context, cfg domain.ReportConfig, reportDate time.Time, fields map[string]any, urls []string) {
	recipients, err := w.store.ActiveRecipientEmails(ctx, cfg.ReportID)
	if err != nil {
		slog.Error("worker: load recipients failed", "report_id", cfg.ReportID, "error", err)
		return
	}
	if len(recipients) == 0 {
		return
	}
	dateStr := reportDate.Format("2006-01-02")
	err = w.notifier.SendReport(ctx, recipients, notify.ReportPayload{
		ReportID:   cfg.ReportID,
		ReportName: cfg.Name,
		ReportDate: dateStr,
		Fields:     fields,
		URLs:       urls,
	})
	if err != nil {
		slog.Error("worker: send report email failed", "report_id", cfg.ReportID, "error", err)
	}
}

// fetchAll fetches every endpoint for reportDateStr. A PDF-backed endpoint's
// body is never JSON-decoded: its fetchedEndpoint carries the raw bytes and
// a single pseudo-row capturing its content hash, so hash.Payload still sees
// a change in the bulletin even though no row structure exists to diff.
func (w *Worker) fetchAll(ctx context.Context, cfg domain.ReportConfig, reportDateStr string) ([]fetchedEndpoint, []string, error) {
	endpoints := make([]fetchedEndpoint, 0, len(cfg.Endpoints))
	urls := make([]string, 0, len(cfg.Endpoints))

	for _, ep := range cfg.Endpoints {
		url := ep.BuildURL(w.apiBase, reportDateStr)
		urls = append(urls, url)

		result, err := w.fetcher.Get(ctx, url)
		if err != nil {
			return nil, urls, err
		}

		if isPDFEndpoint(ep) {
			endpoints = append(endpoints, fetchedEndpoint{
				rows: []map[string]any{{"_raw_sha256": sha256Hex(result.Body)}},
				body: result.Body,
			})
			continue
		}

		rows, err := parse.DecodeRows(result.Body)
		if err != nil {
			return nil, urls, &perr.FetchError{Endpoint: url, Err: err}
		}
		endpoints = append(endpoints, fetchedEndpoint{rows: rows, body: result.Body})
	}

	return endpoints, urls, nil
}

func (w *Worker) finishRun(ctx context.Context, run *domain.ReportRun, reportDate time.Time, state string) {
	run.ReportDate = &reportDate
	run.Finish(state, w.clock.Now())
	if err := w.store.FinishRun(ctx, run); err != nil {
		slog.Error("worker: finish run failed", "report_id", run.ReportID, "error", err)
		return
	}
	event := &domain.ReportRunEvent{RunID: run.ID, EventType: state, Message: state}
	if err := w.store.AppendRunEvent(ctx, event); err != nil {
		slog.Error("worker: append run event failed", "report_id", run.ReportID, "error", err)
	}
}

func (w *Worker) failRun(ctx context.Context, run *domain.ReportRun, cause error) {
	state := domain.RunStateErrorFetch
	var parseErr *perr.ParseError
	if errors.As(cause, &parseErr) {
		state = domain.RunStateErrorParse
	}
	run.ErrorType = perr.TypeOf(cause)
	run.ErrorMessage = cause.Error()
	run.Finish(state, w.clock.Now())
	if err := w.store.FinishRun(ctx, run); err != nil {
		slog.Error("worker: finish failed run failed", "report_id", run.ReportID, "error", err)
	}
	event := &domain.ReportRunEvent{RunID: run.ID, EventType: "error", Message: cause.Error()}
	if err := w.store.AppendRunEvent(ctx, event); err != nil {
		slog.Error("worker: append error event failed", "report_id", run.ReportID, "error", err)
	}
	w.alert.RecordFailure(ctx, run.ReportID, run.ID, run.ErrorType)
	slog.Error("worker: run failed", "report_id", run.ReportID, "run_id", run.ID, "error_type", run.ErrorType, "error", cause)
}

func isPDFEndpoint(ep domain.Endpoint) bool {
	return ep.AbsoluteURL != "" && strings.HasSuffix(strings.ToLower(ep.AbsoluteURL), ".pdf")
}

func sha256Hex(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
