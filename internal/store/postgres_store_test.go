package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/usda-monitor/pollengine/internal/domain"
)

func TestCreateRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO report_runs`).
		WithArgs("PK600_MORNING_CASH", nil, domain.RunStateWaitingForPublication, 1, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	s := NewPostgresStore(db)
	run := &domain.ReportRun{
		ReportID:     "PK600_MORNING_CASH",
		State:        domain.RunStateWaitingForPublication,
		Attempt:      1,
		RunStartedAt: now,
	}
	require.NoError(t, s.CreateRun(context.Background(), run))
	require.Equal(t, int64(42), run.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVersionConflictReturnsFalse(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO report_versions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	s := NewPostgresStore(db)
	v := &domain.ReportVersion{
		ReportID:     "PK600_MORNING_CASH",
		ReportDate:   time.Now(),
		PayloadHash:  "abc123",
		ParsedFields: map[string]any{"wtd_avg": "100"},
		CreatedAt:    time.Now(),
	}
	inserted, err := s.InsertVersion(context.Background(), v)
	require.NoError(t, err)
	require.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlertStateDefaultsWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT report_id, consecutive_failures`).
		WithArgs("HG201_CME_INDEX").
		WillReturnRows(sqlmock.NewRows([]string{"report_id", "consecutive_failures", "last_failure_at", "updated_at"}))

	s := NewPostgresStore(db)
	state, err := s.GetAlertState(context.Background(), "HG201_CME_INDEX")
	require.NoError(t, err)
	require.Equal(t, "HG201_CME_INDEX", state.ReportID)
	require.Equal(t, 0, state.ConsecutiveFailures)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveRecipientEmails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT r.email`).
		WithArgs("PK600_MORNING_CASH").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("recipient@example.com"))

	s := NewPostgresStore(db)
	emails, err := s.ActiveRecipientEmails(context.Background(), "PK600_MORNING_CASH")
	require.NoError(t, err)
	require.Equal(t, []string{"recipient@example.com"}, emails)
	require.NoError(t, mock.ExpectationsWereMet())
}
