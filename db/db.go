// Package db provides database connection helpers and schema migration for the
// optional session-history store.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DSN")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and
// indices. Used as the fallback when no versioned migrations directory ships
// with the binary (see RunMigrations).
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stream_sessions (
			id SERIAL PRIMARY KEY,
			session_id TEXT UNIQUE NOT NULL,
			platform TEXT NOT NULL,
			handle TEXT NOT NULL,
			title TEXT,
			category TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			peak_viewers INTEGER DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS announcement_log (
			id SERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			adapter TEXT NOT NULL,
			operation TEXT NOT NULL,
			ok BOOLEAN NOT NULL,
			error TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_session_id ON stream_sessions(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_account ON stream_sessions(platform, handle)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON stream_sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_announcements_session ON announcement_log(session_id)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
