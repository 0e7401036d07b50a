package domain

import "time"

// SchedulingState is the scheduler's in-memory, per-report tick state. It is
// never persisted: on process restart every report's next_due resets to the
// zero time, making it immediately eligible.
type SchedulingState struct {
	NextDue    time.Time
	ErrorCount int
}
