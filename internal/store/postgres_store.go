package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/usda-monitor/pollengine/internal/domain"
)

// PostgresStore is the default Store backend: report_runs, report_versions,
// report_run_events, alert_state, recipients/recipient_reports, and reports
// (persisted registry overrides) live as plain tables, queried with raw SQL
// rather than an ORM — this system has no relationship graph deep enough to
// justify one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened database/sql handle (driver
// "postgres", via lib/pq).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *domain.ReportRun) error {
	query := `
		INSERT INTO report_runs (report_id, report_date, state, attempt, run_started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return scanSingleRow(ctx, s.db, query, []any{
		run.ReportID, run.ReportDate, run.State, run.Attempt, run.RunStartedAt,
	}, &run.ID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *domain.ReportRun) error {
	query := `
		UPDATE report_runs
		SET state = $2, report_date = $3, run_finished_at = $4,
			error_type = $5, error_message = $6, payload_hash = $7
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.State, run.ReportDate, run.RunFinishedAt,
		nullString(run.ErrorType), nullString(run.ErrorMessage), nullString(run.PayloadHash),
	)
	return err
}

func (s *PostgresStore) AppendRunEvent(ctx context.Context, event *domain.ReportRunEvent) error {
	var data any
	if event.Data != nil {
		b, err := json.Marshal(event.Data)
		if err != nil {
			return err
		}
		data = b
	}
	query := `
		INSERT INTO report_run_events (run_id, event_type, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return scanSingleRow(ctx, s.db, query, []any{
		event.RunID, event.EventType, nullString(event.Message), data, event.CreatedAt,
	}, &event.ID)
}

func (s *PostgresStore) VersionsForDate(ctx context.Context, reportID string, reportDate time.Time) ([]domain.ReportVersion, error) {
	query := `
		SELECT id, report_id, report_date, payload_hash, parsed_fields, raw_payload, source_urls, created_at
		FROM report_versions
		WHERE report_id = $1 AND report_date = $2
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, reportID, reportDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReportVersion
	for rows.Next() {
		var v domain.ReportVersion
		var parsedFields []byte
		var sourceURLs pq.StringArray
		if err := rows.Scan(&v.ID, &v.ReportID, &v.ReportDate, &v.PayloadHash, &parsedFields, &v.RawPayload, &sourceURLs, &v.CreatedAt); err != nil {
			return nil, err
		}
		if len(parsedFields) > 0 {
			if err := json.Unmarshal(parsedFields, &v.ParsedFields); err != nil {
				return nil, err
			}
		}
		v.SourceURLs = []string(sourceURLs)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertVersion(ctx context.Context, version *domain.ReportVersion) (bool, error) {
	parsedFields, err := json.Marshal(version.ParsedFields)
	if err != nil {
		return false, err
	}
	query := `
		INSERT INTO report_versions (report_id, report_date, payload_hash, parsed_fields, raw_payload, source_urls, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (report_id, report_date, payload_hash) DO NOTHING
		RETURNING id
	`
	err = scanSingleRow(ctx, s.db, query, []any{
		version.ReportID, version.ReportDate, version.PayloadHash, parsedFields,
		version.RawPayload, pq.StringArray(version.SourceURLs), version.CreatedAt,
	}, &version.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MergeVersionFields sets any of newFields not already present (or present
// but null) onto an existing version's stored parsed_fields, key by key via
// sjson, rather than a full unmarshal/remarshal round trip through a Go map
// (which would also lose the stored JSON's key order).
func (s *PostgresStore) MergeVersionFields(ctx context.Context, versionID int64, newFields map[string]any) error {
	query := `SELECT parsed_fields FROM report_versions WHERE id = $1`
	var raw []byte
	if err := scanSingleRow(ctx, s.db, query, []any{versionID}, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	merged := string(raw)
	for k, v := range newFields {
		if v == nil {
			continue
		}
		existing := gjson.GetBytes([]byte(merged), k)
		if existing.Exists() && existing.Type != gjson.Null {
			continue
		}
		updated, err := sjson.Set(merged, k, v)
		if err != nil {
			return err
		}
		merged = updated
	}

	_, err := s.db.ExecContext(ctx, `UPDATE report_versions SET parsed_fields = $2 WHERE id = $1`, versionID, merged)
	return err
}

func (s *PostgresStore) GetAlertState(ctx context.Context, reportID string) (domain.AlertState, error) {
	query := `
		SELECT report_id, consecutive_failures, last_failure_at, updated_at
		FROM alert_state
		WHERE report_id = $1
	`
	var state domain.AlertState
	var lastFailureAt sql.NullTime
	err := scanSingleRow(ctx, s.db, query, []any{reportID}, &state.ReportID, &state.ConsecutiveFailures, &lastFailureAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AlertState{ReportID: reportID}, nil
	}
	if err != nil {
		return domain.AlertState{}, err
	}
	if lastFailureAt.Valid {
		state.LastFailureAt = &lastFailureAt.Time
	}
	return state, nil
}

func (s *PostgresStore) UpsertAlertState(ctx context.Context, state domain.AlertState) error {
	query := `
		INSERT INTO alert_state (report_id, consecutive_failures, last_failure_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (report_id) DO UPDATE SET
			consecutive_failures = EXCLUDED.consecutive_failures,
			last_failure_at = EXCLUDED.last_failure_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, state.ReportID, state.ConsecutiveFailures, state.LastFailureAt, state.UpdatedAt)
	return err
}

func (s *PostgresStore) ActiveRecipientEmails(ctx context.Context, reportID string) ([]string, error) {
	query := `
		SELECT r.email
		FROM recipients r
		JOIN recipient_reports rr ON rr.recipient_id = r.id
		WHERE rr.report_id = $1 AND r.is_active = true
	`
	rows, err := s.db.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (s *PostgresStore) ReportOverrides(ctx context.Context) ([]domain.ReportConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT config FROM reports ORDER BY report_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ReportConfig
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var cfg domain.ReportConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertReportOverride(ctx context.Context, cfg domain.ReportConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO reports (report_id, name, config)
		VALUES ($1, $2, $3)
		ON CONFLICT (report_id) DO UPDATE SET name = EXCLUDED.name, config = EXCLUDED.config
	`
	_, err = s.db.ExecContext(ctx, query, cfg.ReportID, cfg.Name, raw)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
