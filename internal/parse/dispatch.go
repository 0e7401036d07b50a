// Package parse turns one or more endpoint response bodies into the typed
// field set a ReportVersion stores, per report schema selection rule.
package parse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/usda-monitor/pollengine/internal/domain"
	"github.com/usda-monitor/pollengine/internal/perr"
)

// dateFieldAliases are the row keys a date_match selection rule checks, in
// order, mirroring the aliases the original implementation tolerated across
// endpoints that spell the column differently.
var dateFieldAliases = []string{"report_date", "report date", "reportdate", "Report Date"}

// DecodeRows extracts the row list from one endpoint's raw JSON body. A
// top-level JSON array is used as-is; a top-level object with a "results"
// array uses that; anything else yields an empty row set (not an error —
// an endpoint that returns {} for a date with nothing published is normal).
func DecodeRows(body []byte) ([]map[string]any, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("response body is not valid JSON")
	}
	parsed := gjson.ParseBytes(body)
	switch {
	case parsed.IsArray():
		return decodeRowsFrom(parsed)
	case parsed.IsObject():
		results := parsed.Get("results")
		if results.IsArray() {
			return decodeRowsFrom(results)
		}
		return nil, nil
	default:
		return nil, nil
	}
}

func decodeRowsFrom(arr gjson.Result) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.Unmarshal([]byte(arr.Raw), &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// SelectRow applies rule against rows and returns the selected row. For
// row_index it returns nil when the index is out of range; for date_match and
// field_equals it falls back to rows[0] when no row matches, and returns nil
// only when rows is empty. reportDateStr is only consulted for date_match.
func SelectRow(rule domain.SelectionRule, rows []map[string]any, reportDateStr string) map[string]any {
	switch rule.Type {
	case domain.SelectRowIndex:
		if rule.Index >= 0 && rule.Index < len(rows) {
			return rows[rule.Index]
		}
		return nil
	case domain.SelectDateMatch:
		for _, row := range rows {
			for _, key := range dateFieldAliases {
				if v, ok := row[key]; ok && fmt.Sprint(v) == reportDateStr {
					return row
				}
			}
		}
	case domain.SelectFieldEquals:
		for _, row := range rows {
			if v, ok := row[rule.Field]; ok && fmt.Sprint(v) == rule.Value {
				return row
			}
		}
	}
	if len(rows) > 0 {
		return rows[0]
	}
	return nil
}

// isoFromUSDate converts a USDA Market News API query-format date
// (MM/DD/YYYY) to the ISO form (YYYY-MM-DD) every parsed field map stores
// report_date in. Returns s unchanged if it doesn't parse as MM/DD/YYYY.
func isoFromUSDate(s string) string {
	t, err := time.Parse("01/02/2006", s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

// RowDate extracts a row's own report_date field value (as opposed to the
// scheduler's target date), trying each known alias column in turn. Used to
// group a range-fetch response's rows by the date they actually belong to.
func RowDate(row map[string]any) string {
	for _, key := range dateFieldAliases {
		if v, ok := row[key]; ok {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" && s != "<nil>" {
				return s
			}
		}
	}
	return ""
}

// Generic parses a single-endpoint report: select one row from the primary
// endpoint's rows and project the schema's required fields.
func Generic(schema domain.ReportSchema, rows []map[string]any, reportDateStr string) (map[string]any, error) {
	row := SelectRow(schema.SelectRule, rows, reportDateStr)
	if row == nil {
		return nil, &perr.ParseError{ReportID: schema.ReportID, Err: fmt.Errorf("no matching row for report date")}
	}
	out := make(map[string]any, len(schema.RequiredFields)+1)
	out["report_date"] = isoFromUSDate(reportDateStr)
	for _, field := range schema.RequiredFields {
		out[field] = row[field]
	}
	return out, nil
}
