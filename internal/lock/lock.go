// Package lock provides the cross-process advisory lock a worker holds for
// the duration of one report's run, so two poller processes (or two ticks of
// the same report overlapping under a long-running fetch) never race on the
// same report_id.
package lock

import (
	"context"
	"errors"
)

// ErrBusy names the busy-lock condition. The Locker implementations in this
// package do not return it: TryAcquire reports a lock held elsewhere as
// ok=false with a nil error, which callers treat as a benign short-circuit.
var ErrBusy = errors.New("report lock busy")

// Locker is a per-report_id cross-process mutex. Release is always called,
// even when the held work fails.
type Locker interface {
	// TryAcquire attempts to take the lock for reportID without blocking.
	// ok is false (with a nil error) when another holder already has it.
	TryAcquire(ctx context.Context, reportID string) (ok bool, err error)
	// Release gives up a lock previously acquired for reportID.
	Release(ctx context.Context, reportID string) error
}
