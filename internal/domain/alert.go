package domain

import "time"

// AlertState tracks consecutive worker failures for one report, keyed by
// report_id. The alert coordinator clears it on any non-failure terminal
// state and increments it on error_fetch/error_parse.
type AlertState struct {
	ReportID            string
	ConsecutiveFailures int
	LastFailureAt       *time.Time
	UpdatedAt           time.Time
}

// CrossedThreshold reports whether ConsecutiveFailures has reached or passed
// threshold. It stays true for every further failure until the state is
// cleared, so an alert fires on each failure at or above the threshold.
func (a AlertState) CrossedThreshold(threshold int) bool {
	return a.ConsecutiveFailures >= threshold
}
