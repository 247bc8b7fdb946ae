// Package history is the optional Postgres audit log of stream sessions and
// announcement operations. It is write-mostly: the core never reads it back,
// and every write failure is logged and swallowed so a database outage cannot
// affect announcements.
package history

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/onnwee/stream-herald/monitor"
)

// Store records sessions and announcement operations. Implements
// announce.Recorder.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		log: slog.Default().With(slog.String("component", "history")),
	}
}

// RecordSessionStart inserts the session row at LiveStarted.
func (s *Store) RecordSessionStart(ctx context.Context, ev monitor.Event) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stream_sessions(session_id, platform, handle, title, category, started_at)
		 VALUES($1,$2,$3,$4,$5,$6)
		 ON CONFLICT(session_id) DO NOTHING`,
		ev.SessionID, ev.Account.Platform, ev.Account.Handle,
		ev.Sample.Title, ev.Sample.Category, ev.LiveSince.UTC())
	if err != nil {
		s.log.Warn("failed to record session start",
			slog.String("session", ev.SessionID), slog.Any("error", err))
	}
}

// RecordSessionEnd stamps the end time and peak viewers at LiveEnded.
func (s *Store) RecordSessionEnd(ctx context.Context, ev monitor.Event, peakViewers int) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE stream_sessions SET ended_at=$2, peak_viewers=$3 WHERE session_id=$1`,
		ev.SessionID, time.Now().UTC(), peakViewers)
	if err != nil {
		s.log.Warn("failed to record session end",
			slog.String("session", ev.SessionID), slog.Any("error", err))
	}
}

// RecordPost logs one adapter operation outcome.
func (s *Store) RecordPost(ctx context.Context, ev monitor.Event, adapter, operation string, postErr error) {
	errText := sql.NullString{}
	if postErr != nil {
		errText = sql.NullString{String: postErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO announcement_log(session_id, adapter, operation, ok, error)
		 VALUES($1,$2,$3,$4,$5)`,
		ev.SessionID, adapter, operation, postErr == nil, errText)
	if err != nil {
		s.log.Warn("failed to record announcement",
			slog.String("session", ev.SessionID),
			slog.String("adapter", adapter), slog.Any("error", err))
	}
}

// Session is one row of the recent-session view on /status.
type Session struct {
	SessionID   string     `json:"session_id"`
	Platform    string     `json:"platform"`
	Handle      string     `json:"handle"`
	Title       string     `json:"title,omitempty"`
	Category    string     `json:"category,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	PeakViewers int        `json:"peak_viewers"`
}

// RecentSessions returns the latest sessions for the status endpoint.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, platform, handle, COALESCE(title,''), COALESCE(category,''),
		        started_at, ended_at, peak_viewers
		 FROM stream_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []Session
	for rows.Next() {
		var sess Session
		var ended sql.NullTime
		if err := rows.Scan(&sess.SessionID, &sess.Platform, &sess.Handle,
			&sess.Title, &sess.Category, &sess.StartedAt, &ended, &sess.PeakViewers); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			sess.EndedAt = &t
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Ping reports database reachability for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
