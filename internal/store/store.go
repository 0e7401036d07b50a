// Package store is the durable persistence layer: report runs, versions,
// run events, alert state, recipients, and persisted registry overrides.
package store

import (
	"context"
	"time"

	"github.com/usda-monitor/pollengine/internal/domain"
)

// Store is the durable persistence contract the worker, scheduler,
// alert coordinator, and bootstrap reconciler depend on.
type Store interface {
	// CreateRun inserts a new ReportRun in state waiting_for_publication and
	// populates run.ID.
	CreateRun(ctx context.Context, run *domain.ReportRun) error
	// FinishRun transitions an existing run to a terminal state.
	FinishRun(ctx context.Context, run *domain.ReportRun) error
	// AppendRunEvent appends one event to a run's log.
	AppendRunEvent(ctx context.Context, event *domain.ReportRunEvent) error

	// VersionsForDate returns every recorded edition for (reportID, reportDate).
	VersionsForDate(ctx context.Context, reportID string, reportDate time.Time) ([]domain.ReportVersion, error)
	// InsertVersion inserts a new ReportVersion; returns (false, nil) without
	// error when the (report_id, report_date, payload_hash) triple already
	// exists (ON CONFLICT DO NOTHING).
	InsertVersion(ctx context.Context, version *domain.ReportVersion) (inserted bool, err error)
	// MergeVersionFields merges newFields onto an existing version's
	// ParsedFields key-wise: new keys are added, existing non-null values
	// are preserved, existing null/absent values are overwritten.
	MergeVersionFields(ctx context.Context, versionID int64, newFields map[string]any) error

	// GetAlertState returns the current alert state for a report, or a zero
	// value with ConsecutiveFailures 0 if none exists yet.
	GetAlertState(ctx context.Context, reportID string) (domain.AlertState, error)
	// UpsertAlertState persists state, keyed by ReportID.
	UpsertAlertState(ctx context.Context, state domain.AlertState) error

	// ActiveRecipientEmails returns the active recipients subscribed to reportID.
	ActiveRecipientEmails(ctx context.Context, reportID string) ([]string, error)

	// ReportOverrides returns the persisted report-config override rows, if any.
	ReportOverrides(ctx context.Context) ([]domain.ReportConfig, error)
	// UpsertReportOverride persists one report's config as a live override.
	UpsertReportOverride(ctx context.Context, cfg domain.ReportConfig) error
}
