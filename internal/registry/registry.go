// Package registry holds the compiled-in report definitions and the
// override set, loaded from the store, that can replace them at runtime.
package registry

import (
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/usda-monitor/pollengine/internal/domain"
)

// APIBase is the USDA Market News API root that templated endpoints resolve
// against; absolute-URL endpoints (e.g. the PDF cutout) ignore it.
const APIBase = "https://mpr.datamart.ams.usda.gov/services/v1.1/reports"

const (
	reportPK600MorningCash       = "PK600_MORNING_CASH"
	reportPK600AfternoonCash     = "PK600_AFTERNOON_CASH"
	reportPK600AfternoonCutout   = "PK600_AFTERNOON_CUTOUT"
	reportXB402AfternoonCutout   = "XB402_AFTERNOON_CUTOUT"
	reportHG201CMEIndex          = "HG201_CME_INDEX"
	reportPK600MorningCutoutPDF  = "PK600_MORNING_CUTOUT_PDF"
)

// Exported aliases so other packages (worker, bootstrap, health) can refer
// to a report by symbol instead of duplicating the string literal.
const (
	ReportPK600MorningCash      = reportPK600MorningCash
	ReportPK600AfternoonCash    = reportPK600AfternoonCash
	ReportPK600AfternoonCutout  = reportPK600AfternoonCutout
	ReportXB402AfternoonCutout  = reportXB402AfternoonCutout
	ReportHG201CMEIndex         = reportHG201CMEIndex
	ReportPK600MorningCutoutPDF = reportPK600MorningCutoutPDF
)

func lt(h, m int) domain.LocalTime { return domain.LocalTime{Hour: h, Minute: m} }

// defaultReports is the compiled-in registry, ported field-for-field from
// the report set this system was distilled from.
var defaultReports = []domain.ReportConfig{
	{
		ReportID:  reportPK600MorningCash,
		Name:      "PK600 Morning Cash",
		Endpoints: []domain.Endpoint{{ReportNumber: 2674, ReportPath: "National Volume and Price Data"}},
		Windows:   []domain.PollingWindow{{Start: lt(6, 30), End: lt(9, 0)}},
		Polling: domain.PollingRule{
			InsideCadenceSec: 300, OutsideCadenceSec: 900, MaxLateHours: 6,
			ErrorBackoffBaseSec: 120, ErrorBackoffMaxSec: 1800, JitterSec: 30,
		},
		NeedsPriorDay:        false,
		DateSearchWindowDays: 1,
		Schema: domain.ReportSchema{
			ReportID:       reportPK600MorningCash,
			RequiredFields: []string{"head_count", "wtd_avg", "price_low", "price_high"},
			SelectRule:     domain.SelectionRule{Type: domain.SelectDateMatch},
		},
	},
	{
		ReportID:  reportPK600AfternoonCash,
		Name:      "PK600 Afternoon Cash",
		Endpoints: []domain.Endpoint{{ReportNumber: 2675, ReportPath: "National Volume and Price Data"}},
		Windows:   []domain.PollingWindow{{Start: lt(12, 0), End: lt(14, 30)}},
		Polling: domain.PollingRule{
			InsideCadenceSec: 300, OutsideCadenceSec: 900, MaxLateHours: 6,
			ErrorBackoffBaseSec: 120, ErrorBackoffMaxSec: 1800, JitterSec: 30,
		},
		NeedsPriorDay:        false,
		DateSearchWindowDays: 1,
		Schema: domain.ReportSchema{
			ReportID:       reportPK600AfternoonCash,
			RequiredFields: []string{"head_count", "wtd_avg", "price_low", "price_high"},
			SelectRule:     domain.SelectionRule{Type: domain.SelectDateMatch},
		},
	},
	{
		ReportID: reportPK600AfternoonCutout,
		Name:     "PK600 Afternoon Pork Cutout",
		Endpoints: []domain.Endpoint{
			{ReportNumber: 2498, ReportPath: "Cutout and Primal Values"},
			{ReportNumber: 2498, ReportPath: "Change From Prior Day"},
		},
		Windows: []domain.PollingWindow{{Start: lt(12, 0), End: lt(14, 30)}},
		Polling: domain.PollingRule{
			InsideCadenceSec: 300, OutsideCadenceSec: 900, MaxLateHours: 6,
			ErrorBackoffBaseSec: 120, ErrorBackoffMaxSec: 1800, JitterSec: 30,
		},
		NeedsPriorDay:        false,
		DateSearchWindowDays: 1,
		Schema: domain.ReportSchema{
			ReportID:       reportPK600AfternoonCutout,
			RequiredFields: []string{"cutout_value", "primal_value"},
			SelectRule:     domain.SelectionRule{Type: domain.SelectDateMatch},
		},
	},
	{
		ReportID: reportXB402AfternoonCutout,
		Name:     "XB402 Afternoon Beef Cutout",
		Endpoints: []domain.Endpoint{
			{ReportNumber: 2453, ReportPath: "Current Cutout Values"},
			{ReportNumber: 2453, ReportPath: "Change From Prior Day"},
			{ReportNumber: 2453, ReportPath: "Current Volume"},
		},
		Windows: []domain.PollingWindow{{Start: lt(12, 0), End: lt(15, 0)}},
		Polling: domain.PollingRule{
			InsideCadenceSec: 300, OutsideCadenceSec: 900, MaxLateHours: 6,
			ErrorBackoffBaseSec: 120, ErrorBackoffMaxSec: 1800, JitterSec: 30,
		},
		NeedsPriorDay:        false,
		DateSearchWindowDays: 1,
		Schema: domain.ReportSchema{
			ReportID:       reportXB402AfternoonCutout,
			RequiredFields: []string{"cutout_value", "volume"},
			SelectRule:     domain.SelectionRule{Type: domain.SelectDateMatch},
		},
	},
	{
		ReportID:  reportHG201CMEIndex,
		Name:      "HG201 CME Index",
		Endpoints: []domain.Endpoint{{ReportNumber: 2511, ReportPath: "Barrows/Gilts"}},
		Windows:   []domain.PollingWindow{{Start: lt(13, 0), End: lt(16, 30)}},
		Polling: domain.PollingRule{
			InsideCadenceSec: 600, OutsideCadenceSec: 1800, MaxLateHours: 8,
			ErrorBackoffBaseSec: 180, ErrorBackoffMaxSec: 3600, JitterSec: 60,
		},
		NeedsPriorDay:        true,
		DateSearchWindowDays: 7,
		Schema: domain.ReportSchema{
			ReportID:       reportHG201CMEIndex,
			RequiredFields: []string{"avg_net_price", "head_count"},
			SelectRule: domain.SelectionRule{
				Type:  domain.SelectFieldEquals,
				Field: "purchase_type",
				Value: "Prod. Sold (All Purchase Types)",
			},
		},
	},
	{
		ReportID: reportPK600MorningCutoutPDF,
		Name:     "PK600 Morning Pork Cutout (PDF)",
		Endpoints: []domain.Endpoint{
			{AbsoluteURL: "https://www.ams.usda.gov/mnreports/ams_2496.pdf"},
		},
		Windows: []domain.PollingWindow{{Start: lt(6, 30), End: lt(9, 0)}},
		Polling: domain.PollingRule{
			InsideCadenceSec: 600, OutsideCadenceSec: 1800, MaxLateHours: 6,
			ErrorBackoffBaseSec: 180, ErrorBackoffMaxSec: 3600, JitterSec: 60,
		},
		NeedsPriorDay:        false,
		DateSearchWindowDays: 1,
		Schema: domain.ReportSchema{
			ReportID: reportPK600MorningCutoutPDF,
			RequiredFields: []string{
				"loads", "carcass", "loin", "butt", "pic", "rib", "ham", "belly",
				"change_carcass", "change_loin", "change_butt", "change_pic",
				"change_rib", "change_ham", "change_belly", "text_excerpt", "page_count",
			},
			SelectRule: domain.SelectionRule{Type: domain.SelectRowIndex, Index: 0},
		},
	},
}

// DefaultRecipients is the compiled-in example recipient set. The bootstrap
// reconciler does not seed it into the store, and the worker reads
// recipients from the store only.
var DefaultRecipients = []domain.Recipient{
	{Email: "recipient@example.com", Name: "Example Recipient", IsActive: true},
}

// DefaultRecipientReports pairs DefaultRecipients[0] with its seed report.
var DefaultRecipientReports = []string{reportPK600MorningCash}

// DefaultConsecutiveFailuresThreshold mirrors the compiled-in alerting
// default; overridden in practice by config.PollerConfig.ConsecutiveFailuresThreshold.
const DefaultConsecutiveFailuresThreshold = 3

// Registry holds the live snapshot of report configs. Reads are lock-free
// (atomic.Pointer load); reloads are serialized through a singleflight group
// so concurrent bootstrap/reconcile callers collapse onto one rebuild.
type Registry struct {
	snapshot atomic.Pointer[snapshot]
	reload   singleflight.Group
}

type snapshot struct {
	byID  map[string]domain.ReportConfig
	order []string
}

// New returns a Registry seeded with the compiled-in default report set.
func New() *Registry {
	r := &Registry{}
	r.snapshot.Store(buildSnapshot(defaultReports))
	return r
}

func buildSnapshot(reports []domain.ReportConfig) *snapshot {
	s := &snapshot{
		byID:  make(map[string]domain.ReportConfig, len(reports)),
		order: make([]string, 0, len(reports)),
	}
	for _, rc := range reports {
		s.byID[rc.ReportID] = rc
		s.order = append(s.order, rc.ReportID)
	}
	return s
}

// Reports returns the current snapshot of report configs, in registration order.
func (r *Registry) Reports() []domain.ReportConfig {
	snap := r.snapshot.Load()
	out := make([]domain.ReportConfig, 0, len(snap.order))
	for _, id := range snap.order {
		out = append(out, snap.byID[id])
	}
	return out
}

// Get returns one report's config by id.
func (r *Registry) Get(reportID string) (domain.ReportConfig, bool) {
	snap := r.snapshot.Load()
	rc, ok := snap.byID[reportID]
	return rc, ok
}

// SetOverrides atomically replaces the live snapshot. Passing an empty slice
// reverts to the compiled-in defaults.
func (r *Registry) SetOverrides(reports []domain.ReportConfig) {
	if len(reports) == 0 {
		r.snapshot.Store(buildSnapshot(defaultReports))
		return
	}
	r.snapshot.Store(buildSnapshot(reports))
}

// ReloadFunc fetches the override set to apply, e.g. from a store or an
// on-disk overrides file.
type ReloadFunc func() ([]domain.ReportConfig, error)

// Reload fetches a fresh override set via load and swaps it in. Concurrent
// Reload calls for the same Registry collapse onto a single load call.
func (r *Registry) Reload(load ReloadFunc) error {
	_, err, _ := r.reload.Do("reload", func() (any, error) {
		reports, err := load()
		if err != nil {
			return nil, err
		}
		r.SetOverrides(reports)
		return nil, nil
	})
	return err
}
