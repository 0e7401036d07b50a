//go:build integration

package store

import (
	"context"
	"database/sql"
	"log"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/usda-monitor/pollengine/internal/domain"
)

const schemaSQL = `
CREATE TABLE report_runs (
	id BIGSERIAL PRIMARY KEY,
	report_id TEXT NOT NULL,
	report_date DATE,
	state TEXT NOT NULL,
	attempt INT NOT NULL,
	run_started_at TIMESTAMPTZ NOT NULL,
	run_finished_at TIMESTAMPTZ,
	error_type TEXT,
	error_message TEXT,
	payload_hash TEXT
);
CREATE TABLE report_versions (
	id BIGSERIAL PRIMARY KEY,
	report_id TEXT NOT NULL,
	report_date DATE NOT NULL,
	payload_hash TEXT NOT NULL,
	parsed_fields JSONB NOT NULL,
	raw_payload BYTEA,
	source_urls TEXT[],
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (report_id, report_date, payload_hash)
);
CREATE TABLE alert_state (
	report_id TEXT PRIMARY KEY,
	consecutive_failures INT NOT NULL,
	last_failure_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL
);
`

var integrationDB *sql.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:18.1-alpine3.23",
		tcpostgres.WithDatabase("pollengine_test"),
		tcpostgres.WithUsername("pollengine"),
		tcpostgres.WithPassword("pollengine"),
	)
	if err != nil {
		log.Printf("testcontainers postgres unavailable; skipping integration tests: %v", err)
		os.Exit(0)
	}
	defer container.Terminate(ctx)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		log.Fatalf("schema: %v", err)
	}
	integrationDB = db

	os.Exit(m.Run())
}

func TestPostgresStoreVersionDedup(t *testing.T) {
	s := NewPostgresStore(integrationDB)
	ctx := context.Background()
	now := time.Now().UTC()

	v := &domain.ReportVersion{
		ReportID:     "PK600_MORNING_CASH",
		ReportDate:   now,
		PayloadHash:  "dupe-hash",
		ParsedFields: map[string]any{"wtd_avg": "100.00"},
		CreatedAt:    now,
	}
	inserted, err := s.InsertVersion(ctx, v)
	require.NoError(t, err)
	require.True(t, inserted)

	dup := &domain.ReportVersion{
		ReportID:     "PK600_MORNING_CASH",
		ReportDate:   now,
		PayloadHash:  "dupe-hash",
		ParsedFields: map[string]any{"wtd_avg": "999.00"},
		CreatedAt:    now,
	}
	inserted, err = s.InsertVersion(ctx, dup)
	require.NoError(t, err)
	require.False(t, inserted)

	versions, err := s.VersionsForDate(ctx, "PK600_MORNING_CASH", now)
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestPostgresStoreAlertStateRoundTrip(t *testing.T) {
	s := NewPostgresStore(integrationDB)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.UpsertAlertState(ctx, domain.AlertState{
		ReportID:            "XB402_AFTERNOON_CUTOUT",
		ConsecutiveFailures: 2,
		LastFailureAt:       &now,
		UpdatedAt:           now,
	}))

	got, err := s.GetAlertState(ctx, "XB402_AFTERNOON_CUTOUT")
	require.NoError(t, err)
	require.Equal(t, 2, got.ConsecutiveFailures)
}
