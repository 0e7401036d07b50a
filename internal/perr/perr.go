// Package perr defines the error taxonomy persisted on ReportRun.error_type
// and used for alert routing and reconciler skip decisions.
package perr

import "errors"

// ErrorType values mirror the taxonomy a worker attempt can end in.
const (
	TypeFetch        = "fetch"
	TypeParse        = "parse"
	TypeLockBusy     = "lock_unavailable"
	TypeConfigInvalid = "config_invalid"
)

// FetchError wraps any transport, timeout, non-2xx, or malformed-body
// condition surfaced by the HTTP fetcher.
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string { return "fetch " + e.Endpoint + ": " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// ParseError wraps a selection miss, missing required field, or structural
// mismatch inside the parser dispatch.
type ParseError struct {
	ReportID string
	Err      error
}

func (e *ParseError) Error() string { return "parse " + e.ReportID + ": " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// ErrLockBusy is the sentinel TypeOf classifies as lock_unavailable. No
// Locker returns it: a lock held by another process comes back as
// TryAcquire's ok=false, and the worker then short-circuits with a success
// return and creates no ReportRun.
var ErrLockBusy = errors.New("lock unavailable")

// ConfigInvalidError wraps a stored report override the reconciler refused
// to load; the compiled-in or previously-live config remains in effect.
type ConfigInvalidError struct {
	ReportID string
	Err      error
}

func (e *ConfigInvalidError) Error() string { return "config invalid for " + e.ReportID + ": " + e.Err.Error() }
func (e *ConfigInvalidError) Unwrap() error { return e.Err }

// TypeOf classifies err into the persisted error_type taxonomy.
func TypeOf(err error) string {
	var fe *FetchError
	var pe *ParseError
	var ce *ConfigInvalidError
	switch {
	case errors.As(err, &fe):
		return TypeFetch
	case errors.As(err, &pe):
		return TypeParse
	case errors.As(err, &ce):
		return TypeConfigInvalid
	case errors.Is(err, ErrLockBusy):
		return TypeLockBusy
	default:
		return TypeFetch
	}
}
