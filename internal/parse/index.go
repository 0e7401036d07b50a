package parse

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/usda-monitor/pollengine/internal/domain"
	"github.com/usda-monitor/pollengine/internal/perr"
)

// cmeCategories are the purchase-type categories blended into the two-day
// index when present; a field_equals rule targeting one of these still
// falls back to a plain single-row match when the endpoint doesn't break
// rows out by category at all.
var cmeCategories = []string{"negotiated", "formula", "negotiated_formula"}

// CMETwoDayIndex implements the HG201 two-day negotiated/formula index.
// Grounded in original_source's test_hg201_index.py fixture contract: rows
// are first grouped by their own reported date (not the scheduler's target
// date — USDA often publishes the index a day behind the underlying sale
// data), the two most recent reported dates are blended, and the weighted
// average price across both days is the index value.
func CMETwoDayIndex(schema domain.ReportSchema, rows []map[string]any, targetDateStr string) (map[string]any, error) {
	byDate := map[string][]map[string]any{}
	for _, row := range rows {
		d := RowDate(row)
		if d == "" {
			continue
		}
		byDate[d] = append(byDate[d], row)
	}
	if len(byDate) == 0 {
		return nil, &perr.ParseError{ReportID: schema.ReportID, Err: fmt.Errorf("no dated rows to index")}
	}

	type reportedDay struct {
		raw string
		t   time.Time
	}
	dates := make([]reportedDay, 0, len(byDate))
	for d := range byDate {
		t, err := time.Parse("01/02/2006", d)
		if err != nil {
			return nil, &perr.ParseError{ReportID: schema.ReportID, Err: fmt.Errorf("row report_date %q: %w", d, err)}
		}
		dates = append(dates, reportedDay{raw: d, t: t})
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].t.After(dates[j].t) })

	day1 := dates[0].raw
	day2 := day1
	if len(dates) > 1 {
		day2 = dates[1].raw
	}

	day1Weight, day1Value, day1Row, err := sumDay(schema, byDate[day1])
	if err != nil {
		return nil, err
	}
	day2Weight, day2Value := 0.0, 0.0
	if day2 != day1 {
		day2Weight, day2Value, _, err = sumDay(schema, byDate[day2])
		if err != nil {
			return nil, err
		}
	}

	twoDayWeight := day1Weight + day2Weight
	twoDayValue := day1Value + day2Value
	indexValue := 0.0
	if twoDayWeight != 0 {
		indexValue = twoDayValue / twoDayWeight
	}

	out := make(map[string]any, len(schema.RequiredFields)+8)
	for _, field := range schema.RequiredFields {
		out[field] = day1Row[field]
	}
	out["report_date"] = isoFromUSDate(targetDateStr)
	out["report_date_1"] = isoFromUSDate(day1)
	out["report_date_2"] = isoFromUSDate(day2)
	out["day1_total_weight"] = day1Weight
	out["day1_total_value"] = day1Value
	out["day2_total_weight"] = day2Weight
	out["day2_total_value"] = day2Value
	out["two_day_total_weight"] = twoDayWeight
	out["two_day_total_value"] = twoDayValue
	out["index_value"] = indexValue
	return out, nil
}

// sumDay selects every row matching the schema's field_equals category rule
// within one reported day's rows (falling back to a single plain match when
// no per-category breakout exists) and sums weight = head_count *
// avg_carcass_weight, value = weight * avg_net_price across them. It also
// returns the first matched row, used to pull schema.RequiredFields.
func sumDay(schema domain.ReportSchema, rows []map[string]any) (weight, value float64, first map[string]any, err error) {
	matched := matchCategoryRows(schema.SelectRule, rows)
	if len(matched) == 0 {
		return 0, 0, nil, &perr.ParseError{ReportID: schema.ReportID, Err: fmt.Errorf("no matching row for purchase_type")}
	}
	first = matched[0]
	for _, row := range matched {
		headCount := toFloat(row["head_count"])
		avgWeight := toFloat(row["avg_carcass_weight"])
		avgPrice := toFloat(row["avg_net_price"])
		w := headCount * avgWeight
		weight += w
		value += w * avgPrice
	}
	return weight, value, first, nil
}

func matchCategoryRows(rule domain.SelectionRule, rows []map[string]any) []map[string]any {
	if rule.Type != domain.SelectFieldEquals {
		return rows
	}
	var out []map[string]any
	for _, cat := range cmeCategories {
		for _, row := range rows {
			if fmt.Sprint(row[rule.Field]) == rule.Value && fmt.Sprint(row["purchase_type_category"]) == cat {
				out = append(out, row)
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, row := range rows {
		if fmt.Sprint(row[rule.Field]) == rule.Value {
			out = append(out, row)
		}
	}
	return out
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
