package lock

import (
	"context"
	"database/sql"
	"sync"
)

// PostgresLock uses pg_try_advisory_lock(hashtext(report_id)) held on a
// single dedicated connection per report_id, since Postgres advisory locks
// are session-scoped — the lock must be released on the same connection
// that took it.
type PostgresLock struct {
	db *sql.DB

	mu    sync.Mutex
	conns map[string]*sql.Conn
}

// NewPostgresLock wraps a database/sql handle (driver "postgres").
func NewPostgresLock(db *sql.DB) *PostgresLock {
	return &PostgresLock{db: db, conns: make(map[string]*sql.Conn)}
}

func (l *PostgresLock) TryAcquire(ctx context.Context, reportID string) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}

	var locked bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, reportID).Scan(&locked); err != nil {
		conn.Close()
		return false, err
	}
	if !locked {
		conn.Close()
		return false, nil
	}

	l.mu.Lock()
	l.conns[reportID] = conn
	l.mu.Unlock()
	return true, nil
}

func (l *PostgresLock) Release(ctx context.Context, reportID string) error {
	l.mu.Lock()
	conn, ok := l.conns[reportID]
	delete(l.conns, reportID)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	defer conn.Close()

	_, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, reportID)
	return err
}
