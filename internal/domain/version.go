package domain

import "time"

// ReportVersion is one distinct, durably recorded edition of a report.
// Uniqueness invariant: (ReportID, ReportDate, PayloadHash) is unique;
// enforced at the store layer with ON CONFLICT DO NOTHING. Never mutated
// once written, except by the range-backfill operation, which merges
// recovered parsed fields onto an existing row for the same key.
type ReportVersion struct {
	ID           int64
	ReportID     string
	ReportDate   time.Time
	PayloadHash  string
	ParsedFields map[string]any
	RawPayload   []byte
	SourceURLs   []string
	CreatedAt    time.Time
}
