// Package alert tracks consecutive worker failures per report and fires a
// notification on every failed attempt once a report's consecutive-failure
// count is at or above the configured threshold.
package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/usda-monitor/pollengine/internal/notify"
	"github.com/usda-monitor/pollengine/internal/store"
)

// Coordinator records per-report run outcomes and notifies the operator
// mailbox on each failure while a report's consecutive failures are at or
// above Threshold.
//
// Grounded in original_source's AlertService: record_failure increments and
// conditionally sends, clear_failure resets to zero on any non-failure
// terminal state.
type Coordinator struct {
	store     store.Store
	notifier  notify.Notifier
	threshold int
}

// New builds a Coordinator. threshold is the consecutive-failure count from
// which alerts fire.
func New(st store.Store, notifier notify.Notifier, threshold int) *Coordinator {
	return &Coordinator{store: st, notifier: notifier, threshold: threshold}
}

// RecordFailure increments reportID's consecutive-failure counter and, if
// the new count is at or above the threshold, sends an alert email.
func (c *Coordinator) RecordFailure(ctx context.Context, reportID string, runID int64, errorType string) {
	state, err := c.store.GetAlertState(ctx, reportID)
	if err != nil {
		slog.Error("alert: load state failed", "report_id", reportID, "error", err)
		return
	}
	state.ReportID = reportID
	state.ConsecutiveFailures++
	now := time.Now().UTC()
	state.LastFailureAt = &now
	state.UpdatedAt = now

	if err := c.store.UpsertAlertState(ctx, state); err != nil {
		slog.Error("alert: persist state failed", "report_id", reportID, "error", err)
		return
	}

	if state.CrossedThreshold(c.threshold) {
		if err := c.notifier.SendAlert(ctx, notify.AlertPayload{
			ReportID:      reportID,
			RunID:         runID,
			ErrorType:     errorType,
			LastAttemptAt: now,
		}); err != nil {
			slog.Error("alert: send failed", "report_id", reportID, "error", err)
		}
	}
}

// ClearFailure resets reportID's consecutive-failure counter to zero. Called
// on every non-failure terminal run state, so a single recovered attempt
// un-arms the alert.
func (c *Coordinator) ClearFailure(ctx context.Context, reportID string) {
	state, err := c.store.GetAlertState(ctx, reportID)
	if err != nil {
		slog.Error("alert: load state failed", "report_id", reportID, "error", err)
		return
	}
	if state.ConsecutiveFailures == 0 {
		return
	}
	state.ReportID = reportID
	state.ConsecutiveFailures = 0
	state.UpdatedAt = time.Now().UTC()
	if err := c.store.UpsertAlertState(ctx, state); err != nil {
		slog.Error("alert: clear state failed", "report_id", reportID, "error", err)
	}
}
