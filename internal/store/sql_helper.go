package store

import (
	"context"
	"database/sql"
)

// sqlExecutor is the subset of *sql.DB (or *sql.Tx) the store needs; it
// exists so tests can substitute a go-sqlmock-backed *sql.DB without the
// store depending on *sql.DB directly everywhere.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanSingleRow runs query with args and scans the single resulting row
// into dest, returning sql.ErrNoRows when the query yields nothing.
func scanSingleRow(ctx context.Context, db sqlExecutor, query string, args []any, dest ...any) error {
	return db.QueryRowContext(ctx, query, args...).Scan(dest...)
}
