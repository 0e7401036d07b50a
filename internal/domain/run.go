package domain

import "time"

// ReportRun states. Every run starts in StateWaitingForPublication and ends
// in exactly one terminal state; terminal states set RunFinishedAt.
const (
	RunStateWaitingForPublication = "waiting_for_publication"
	RunStatePublishedNew          = "published_new"
	RunStatePublishedNoChange     = "published_no_change"
	RunStateHolidayOrNoReport     = "holiday_or_no_report"
	RunStateErrorFetch            = "error_fetch"
	RunStateErrorParse            = "error_parse"
)

// IsTerminal reports whether state is one a ReportRun stops in.
func IsTerminal(state string) bool {
	switch state {
	case RunStatePublishedNew, RunStatePublishedNoChange, RunStateHolidayOrNoReport,
		RunStateErrorFetch, RunStateErrorParse:
		return true
	default:
		return false
	}
}

// IsFailure reports whether state counts toward AlertState.ConsecutiveFailures.
func IsFailure(state string) bool {
	return state == RunStateErrorFetch || state == RunStateErrorParse
}

// ReportRun records one worker execution attempt for a report.
type ReportRun struct {
	ID            int64
	ReportID      string
	ReportDate    *time.Time
	State         string
	Attempt       int
	RunStartedAt  time.Time
	RunFinishedAt *time.Time
	ErrorType     string
	ErrorMessage  string
	PayloadHash   string
}

// Finish transitions the run into a terminal state and stamps RunFinishedAt.
func (r *ReportRun) Finish(state string, finishedAt time.Time) {
	r.State = state
	r.RunFinishedAt = &finishedAt
}

// ReportRunEvent is an append-only log entry attached to a run, used to
// record the progress of a single attempt (endpoint fetched, row selected,
// lock denied, etc.) independent of the run's final state.
type ReportRunEvent struct {
	ID        int64
	RunID     int64
	EventType string
	Message   string
	Data      map[string]any
	CreatedAt time.Time
}
