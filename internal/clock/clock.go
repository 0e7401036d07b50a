// Package clock provides timezone-aware current time, polling-window
// membership, and the weekend heuristic used to distinguish a quiet holiday
// from a genuinely missing publication.
package clock

import "time"

// Clock returns the current time in a fixed IANA location.
type Clock struct {
	loc *time.Location
}

// New returns a Clock fixed to loc (e.g. the location loaded for "America/Chicago").
func New(loc *time.Location) *Clock {
	return &Clock{loc: loc}
}

// Now returns the current instant, in the clock's configured location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's configured timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// InWindow reports whether now falls within any of windows, evaluated
// against now's own date (windows carry no date, only wall-clock times).
func InWindow(now time.Time, windows []Window) bool {
	local := now
	for _, w := range windows {
		start := time.Date(local.Year(), local.Month(), local.Day(), w.Start.Hour, w.Start.Minute, w.Start.Second, 0, local.Location())
		end := time.Date(local.Year(), local.Month(), local.Day(), w.End.Hour, w.End.Minute, w.End.Second, 0, local.Location())
		if (local.Equal(start) || local.After(start)) && (local.Equal(end) || local.Before(end)) {
			return true
		}
	}
	return false
}

// Window is a local wall-clock start/end pair, re-exported here rather than
// importing domain so clock stays a leaf package other packages can depend
// on without a cycle.
type Window struct {
	Start ClockTime
	End   ClockTime
}

// ClockTime is an hour/minute/second with no date, mirroring domain.LocalTime.
type ClockTime struct {
	Hour, Minute, Second int
}

// IsWeekend reports whether t's date, in its own location, falls on a
// Saturday or Sunday. Used as the holiday heuristic: this system carries no
// federal-holiday calendar, matching the original implementation.
func IsWeekend(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	default:
		return false
	}
}

// Today returns the calendar date (midnight, same location) for t.
func Today(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DateString formats t's calendar date as the "report_date" query value the
// USDA Market News API expects.
func DateString(t time.Time) string {
	return t.Format("01/02/2006")
}
