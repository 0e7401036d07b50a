package parse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usda-monitor/pollengine/internal/domain"
)

func hg201Schema() domain.ReportSchema {
	return domain.ReportSchema{
		ReportID:       "HG201_CME_INDEX",
		RequiredFields: []string{"avg_net_price", "head_count"},
		SelectRule: domain.SelectionRule{
			Type:  domain.SelectFieldEquals,
			Field: "purchase_type",
			Value: "Prod. Sold (All Purchase Types)",
		},
	}
}

func TestCMETwoDayIndexBlendsLatestTwoReportedDates(t *testing.T) {
	rows := []map[string]any{
		{"report_date": "02/09/2026", "purchase_type": "Prod. Sold (All Purchase Types)", "head_count": 100.0, "avg_carcass_weight": 70.0, "avg_net_price": 74.0},
		{"report_date": "02/06/2026", "purchase_type": "Prod. Sold (All Purchase Types)", "head_count": 76.0, "avg_carcass_weight": 70.0, "avg_net_price": 70.47368421},
		{"report_date": "02/01/2026", "purchase_type": "Prod. Sold (All Purchase Types)", "head_count": 9999.0, "avg_carcass_weight": 70.0, "avg_net_price": 1.0},
	}

	out, err := CMETwoDayIndex(hg201Schema(), rows, "02/09/2026")
	require.NoError(t, err)

	require.Equal(t, "2026-02-09", out["report_date"])
	require.Equal(t, "2026-02-09", out["report_date_1"])
	require.Equal(t, "2026-02-06", out["report_date_2"])
	require.InDelta(t, 7000.0, out["day1_total_weight"], 0.001)
	require.InDelta(t, 5320.0, out["day2_total_weight"], 0.001)
	require.InDelta(t, 12320.0, out["two_day_total_weight"], 0.001)
	require.InDelta(t, 72.477, out["index_value"], 0.001)
}

func TestCMETwoDayIndexSingleReportedDate(t *testing.T) {
	rows := []map[string]any{
		{"report_date": "02/09/2026", "purchase_type": "Prod. Sold (All Purchase Types)", "head_count": 100.0, "avg_carcass_weight": 70.0, "avg_net_price": 74.0},
	}

	out, err := CMETwoDayIndex(hg201Schema(), rows, "02/09/2026")
	require.NoError(t, err)
	require.Equal(t, out["report_date_1"], out["report_date_2"])
	require.InDelta(t, 0.0, out["day2_total_weight"], 0.001)
	require.InDelta(t, 74.0, out["index_value"], 0.001)
}

func TestCMETwoDayIndexNoMatchingRowsIsParseError(t *testing.T) {
	_, err := CMETwoDayIndex(hg201Schema(), nil, "02/09/2026")
	require.Error(t, err)
}

// TestCMETwoDayIndexSortsChronologicallyAcrossYearBoundary guards against
// lexical string sort, which would rank "12/31/2025" after "01/02/2026".
func TestCMETwoDayIndexSortsChronologicallyAcrossYearBoundary(t *testing.T) {
	rows := []map[string]any{
		{"report_date": "12/31/2025", "purchase_type": "Prod. Sold (All Purchase Types)", "head_count": 50.0, "avg_carcass_weight": 70.0, "avg_net_price": 60.0},
		{"report_date": "01/02/2026", "purchase_type": "Prod. Sold (All Purchase Types)", "head_count": 100.0, "avg_carcass_weight": 70.0, "avg_net_price": 80.0},
	}

	out, err := CMETwoDayIndex(hg201Schema(), rows, "01/02/2026")
	require.NoError(t, err)

	require.Equal(t, "2026-01-02", out["report_date_1"])
	require.Equal(t, "2025-12-31", out["report_date_2"])
}
