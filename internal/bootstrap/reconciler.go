// Package bootstrap seeds and reconciles the persisted report-config
// overrides against the compiled-in registry defaults on process startup,
// per spec.md §4.7 / SPEC_FULL.md §4.7.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/usda-monitor/pollengine/internal/domain"
	"github.com/usda-monitor/pollengine/internal/perr"
	"github.com/usda-monitor/pollengine/internal/registry"
)

// Store is the subset of store.Store the reconciler needs.
type Store interface {
	ReportOverrides(ctx context.Context) ([]domain.ReportConfig, error)
	UpsertReportOverride(ctx context.Context, cfg domain.ReportConfig) error
}

// Reconciler seeds missing reports, merges missing fields into stored
// overrides that predate a compiled-in field addition, and refuses (with a
// logged perr.ConfigInvalidError) any stored override that fails basic
// shape validation — the default or previously-live config stays in effect
// for that report rather than the reconciler aborting startup entirely.
type Reconciler struct {
	store Store
	reg   *registry.Registry
}

func New(st Store, reg *registry.Registry) *Reconciler {
	return &Reconciler{store: st, reg: reg}
}

// Reconcile seeds any compiled-in report missing from the store, merges
// compiled-in field defaults into stored rows that are missing them, skips
// (and logs) any stored row that fails validation, and repopulates the
// registry's live snapshot from the reconciled set.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	compiled := r.reg.Reports()

	stored, err := r.store.ReportOverrides(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: load stored overrides: %w", err)
	}
	storedByID := make(map[string]domain.ReportConfig, len(stored))
	for _, cfg := range stored {
		storedByID[cfg.ReportID] = cfg
	}

	final := make([]domain.ReportConfig, 0, len(compiled))
	for _, defaultCfg := range compiled {
		storedCfg, exists := storedByID[defaultCfg.ReportID]
		if !exists {
			if err := r.store.UpsertReportOverride(ctx, defaultCfg); err != nil {
				return fmt.Errorf("bootstrap: seed %s: %w", defaultCfg.ReportID, err)
			}
			slog.Info("bootstrap: seeded report config", "report_id", defaultCfg.ReportID)
			final = append(final, defaultCfg)
			continue
		}

		if err := validate(storedCfg); err != nil {
			cfgErr := &perr.ConfigInvalidError{ReportID: storedCfg.ReportID, Err: err}
			slog.Error("bootstrap: stored report config invalid, keeping compiled default", "error", cfgErr)
			final = append(final, defaultCfg)
			continue
		}

		merged, upgraded := mergeMissing(storedCfg, defaultCfg)
		if upgraded {
			if err := r.store.UpsertReportOverride(ctx, merged); err != nil {
				return fmt.Errorf("bootstrap: upgrade %s: %w", merged.ReportID, err)
			}
			slog.Info("bootstrap: upgraded stored report config with new compiled-in fields", "report_id", merged.ReportID)
		}
		final = append(final, merged)
	}

	r.reg.SetOverrides(final)
	return nil
}

// validate rejects a stored override too malformed to run: no endpoints, an
// unrecognized selection rule kind, or a non-positive search window.
func validate(cfg domain.ReportConfig) error {
	if cfg.ReportID == "" {
		return fmt.Errorf("report_id is empty")
	}
	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}
	switch cfg.Schema.SelectRule.Type {
	case domain.SelectDateMatch, domain.SelectRowIndex, domain.SelectFieldEquals:
	default:
		return fmt.Errorf("unrecognized select_rule.type %q", cfg.Schema.SelectRule.Type)
	}
	if cfg.DateSearchWindowDays <= 0 {
		return fmt.Errorf("date_search_window_days must be positive")
	}
	if cfg.Polling.InsideCadenceSec <= 0 || cfg.Polling.OutsideCadenceSec <= 0 {
		return fmt.Errorf("polling cadence must be positive")
	}
	return nil
}

// mergeMissing fills any zero-value field on stored with defaultCfg's value
// — a stored row persisted before a field existed in the compiled registry
// (e.g. an added polling knob) gets that field backfilled rather than
// running with a zero value the report was never configured to tolerate.
// Name, Endpoints, Windows, and Schema are only backfilled wholesale (there is no
// meaningful per-field merge inside a schema or window list); everything
// else merges field by field.
func mergeMissing(stored, defaultCfg domain.ReportConfig) (domain.ReportConfig, bool) {
	upgraded := false
	merged := stored

	if merged.Name == "" {
		merged.Name = defaultCfg.Name
		upgraded = true
	}
	if len(merged.Endpoints) == 0 {
		merged.Endpoints = defaultCfg.Endpoints
		upgraded = true
	}
	if len(merged.Windows) == 0 {
		merged.Windows = defaultCfg.Windows
		upgraded = true
	}
	if merged.DateSearchWindowDays == 0 {
		merged.DateSearchWindowDays = defaultCfg.DateSearchWindowDays
		upgraded = true
	}
	if (merged.Schema.ReportID == "" || len(merged.Schema.RequiredFields) == 0) && len(defaultCfg.Schema.RequiredFields) > 0 {
		merged.Schema = defaultCfg.Schema
		upgraded = true
	}

	p := &merged.Polling
	dp := defaultCfg.Polling
	if p.InsideCadenceSec == 0 {
		p.InsideCadenceSec = dp.InsideCadenceSec
		upgraded = true
	}
	if p.OutsideCadenceSec == 0 {
		p.OutsideCadenceSec = dp.OutsideCadenceSec
		upgraded = true
	}
	if p.MaxLateHours == 0 {
		p.MaxLateHours = dp.MaxLateHours
		upgraded = true
	}
	if p.ErrorBackoffBaseSec == 0 {
		p.ErrorBackoffBaseSec = dp.ErrorBackoffBaseSec
		upgraded = true
	}
	if p.ErrorBackoffMaxSec == 0 {
		p.ErrorBackoffMaxSec = dp.ErrorBackoffMaxSec
		upgraded = true
	}
	if p.JitterSec == 0 {
		p.JitterSec = dp.JitterSec
		upgraded = true
	}

	return merged, upgraded
}
