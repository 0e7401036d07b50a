package parse

import (
	"fmt"

	"github.com/usda-monitor/pollengine/internal/domain"
	"github.com/usda-monitor/pollengine/internal/perr"
)

// EndpointRole tags whether an endpoint's selected row merges in under a
// prefix (a "change from prior day" companion endpoint) or unprefixed (an
// additional primary-value endpoint, e.g. volume).
type EndpointRole struct {
	Prefix string // "" for unprefixed merge, "change_" for a change-from-prior-day endpoint
}

// CutoutMerge implements the multi-endpoint cutout merge strategy: the
// primary endpoint (payloads[0]) supplies the base fields via the schema's
// selection rule, and each subsequent endpoint's selected row is merged in,
// either unprefixed or under roles[i].Prefix.
//
// Grounded in original_source's PK600_AFTERNOON_CUTOUT (2 endpoints, one
// "Change From Prior Day") and XB402_AFTERNOON_CUTOUT (3 endpoints, one
// change, one volume) configs.
func CutoutMerge(schema domain.ReportSchema, payloads [][]map[string]any, roles []EndpointRole, reportDateStr string) (map[string]any, error) {
	if len(payloads) == 0 {
		return nil, &perr.ParseError{ReportID: schema.ReportID, Err: fmt.Errorf("no endpoint payloads")}
	}

	primaryRow := SelectRow(schema.SelectRule, payloads[0], reportDateStr)
	if primaryRow == nil {
		return nil, &perr.ParseError{ReportID: schema.ReportID, Err: fmt.Errorf("no matching row for report date")}
	}

	merged := map[string]any{}
	for k, v := range primaryRow {
		merged[k] = v
	}

	for i := 1; i < len(payloads); i++ {
		row := SelectRow(schema.SelectRule, payloads[i], reportDateStr)
		if row == nil {
			continue
		}
		prefix := ""
		if i-1 < len(roles) {
			prefix = roles[i-1].Prefix
		}
		for k, v := range row {
			merged[prefix+k] = v
		}
	}

	out := make(map[string]any, len(schema.RequiredFields)+1)
	out["report_date"] = isoFromUSDate(reportDateStr)
	for _, field := range schema.RequiredFields {
		out[field] = merged[field]
	}
	return out, nil
}
