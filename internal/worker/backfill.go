package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/usda-monitor/pollengine/internal/clock"
	"github.com/usda-monitor/pollengine/internal/domain"
	"github.com/usda-monitor/pollengine/internal/hash"
	"github.com/usda-monitor/pollengine/internal/parse"
	"github.com/usda-monitor/pollengine/internal/perr"
	"github.com/usda-monitor/pollengine/internal/registry"
)

// RangeBackfill fetches a date range in as few requests as the source
// supports and inserts or merges one ReportVersion per date recovered.
//
// Grounded in original_source's main.py api_report_gather handler and
// services/gather.py:
//   - a PDF-backed report rejects backfill outright — there is no range
//     query for a fixed-URL bulletin.
//   - HG201_CME_INDEX uses the range-rows variant: one range-token request,
//     rows grouped by their own report_date field, each date's rows run
//     through the two-day index algorithm degenerately (a lone date blends
//     with itself).
//   - every other report uses the range-payloads variant: one range-token
//     request per endpoint, each endpoint's rows grouped by date
//     independently, then zipped back together per date in endpoint order
//     before running the report's normal parse strategy.
//
// A hash collision against an already-recorded date merges the new parsed
// fields onto the existing version and counts as skipped; anything else
// inserts a new version and counts as inserted.
func (w *Worker) RangeBackfill(ctx context.Context, cfg domain.ReportConfig, start, end time.Time) (inserted, skipped int, err error) {
	if len(cfg.Endpoints) > 0 && cfg.Endpoints[0].AbsoluteURL != "" {
		return 0, 0, fmt.Errorf("backfill is not supported for %s: PDF-backed report has no range query", cfg.ReportID)
	}

	strat := strategyFor(cfg.ReportID)

	var byDate map[string][]fetchedEndpoint
	if cfg.ReportID == registry.ReportHG201CMEIndex {
		byDate, err = w.fetchRangeRows(ctx, cfg, start, end)
	} else {
		byDate, err = w.fetchRangePayloads(ctx, cfg, start, end)
	}
	if err != nil {
		return 0, 0, err
	}

	for dateStr, endpoints := range byDate {
		reportDate, dateErr := time.Parse("01/02/2006", dateStr)
		if dateErr != nil {
			continue
		}

		fields, extractErr := strat.extract(cfg.Schema, endpoints, dateStr)
		if extractErr != nil {
			continue
		}

		payloads := make([][]map[string]any, len(endpoints))
		for i, e := range endpoints {
			payloads[i] = e.rows
		}
		payloadHash := hash.Payload(payloads)

		existing, verr := w.store.VersionsForDate(ctx, cfg.ReportID, reportDate)
		if verr != nil {
			return inserted, skipped, verr
		}

		matchedExisting := false
		for _, v := range existing {
			if v.PayloadHash != payloadHash {
				continue
			}
			if merr := w.store.MergeVersionFields(ctx, v.ID, fields); merr != nil {
				return inserted, skipped, merr
			}
			skipped++
			matchedExisting = true
			break
		}
		if matchedExisting {
			continue
		}

		rawPayload, _ := json.Marshal(map[string]any{"payloads": payloads})
		version := &domain.ReportVersion{
			ReportID:     cfg.ReportID,
			ReportDate:   reportDate,
			PayloadHash:  payloadHash,
			ParsedFields: fields,
			RawPayload:   rawPayload,
		}
		ok, ierr := w.store.InsertVersion(ctx, version)
		if ierr != nil {
			return inserted, skipped, ierr
		}
		if ok {
			inserted++
		} else {
			skipped++
		}
	}

	return inserted, skipped, nil
}

// fetchRangePayloads issues one range-token request per endpoint and groups
// each endpoint's rows by their own report date, preserving endpoint order
// per date so the cutout-merge strategy's role prefixes still line up.
func (w *Worker) fetchRangePayloads(ctx context.Context, cfg domain.ReportConfig, start, end time.Time) (map[string][]fetchedEndpoint, error) {
	byDate := map[string][]fetchedEndpoint{}
	token := clock.DateString(start) + ":" + clock.DateString(end)

	for _, ep := range cfg.Endpoints {
		url := ep.BuildURL(w.apiBase, token)
		result, err := w.fetcher.Get(ctx, url)
		if err != nil {
			return nil, err
		}
		rows, err := parse.DecodeRows(result.Body)
		if err != nil {
			return nil, &perr.FetchError{Endpoint: url, Err: err}
		}

		grouped := map[string][]map[string]any{}
		for _, row := range rows {
			d := parse.RowDate(row)
			if d == "" {
				continue
			}
			grouped[d] = append(grouped[d], row)
		}
		for d, rowList := range grouped {
			byDate[d] = append(byDate[d], fetchedEndpoint{rows: rowList})
		}
	}
	return byDate, nil
}

// fetchRangeRows issues one range-token request per endpoint of cfg, pools
// every row together, and groups the pool by each row's own
// report date. Used by HG201_CME_INDEX, whose historical blend needs every
// candidate row visible regardless of which endpoint it came from.
func (w *Worker) fetchRangeRows(ctx context.Context, cfg domain.ReportConfig, start, end time.Time) (map[string][]fetchedEndpoint, error) {
	token := clock.DateString(start) + ":" + clock.DateString(end)
	var allRows []map[string]any

	for _, ep := range cfg.Endpoints {
		url := ep.BuildURL(w.apiBase, token)
		result, err := w.fetcher.Get(ctx, url)
		if err != nil {
			return nil, err
		}
		rows, err := parse.DecodeRows(result.Body)
		if err != nil {
			return nil, &perr.FetchError{Endpoint: url, Err: err}
		}
		allRows = append(allRows, rows...)
	}

	grouped := map[string][]map[string]any{}
	for _, row := range allRows {
		d := parse.RowDate(row)
		if d == "" {
			continue
		}
		grouped[d] = append(grouped[d], row)
	}

	byDate := map[string][]fetchedEndpoint{}
	for d, rowList := range grouped {
		byDate[d] = []fetchedEndpoint{{rows: rowList}}
	}
	return byDate, nil
}
