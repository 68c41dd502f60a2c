// Package storage keeps an append-only log of executions in SQLite.
package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Execution is one logged run.
type Execution struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`
	ExitCode  int       `json:"exitCode"`
	Stdout    string    `json:"output"`
	Stderr    string    `json:"error"`
	TimedOut  bool      `json:"timedOut"`
	Streamed  bool      `json:"streamed"`
	Duration  int64     `json:"durationMs"`
	StartedAt time.Time `json:"startedAt"`
}

// Stats summarises the log for one language.
type Stats struct {
	Language   string `json:"language"`
	Executions int    `json:"executions"`
	Failures   int    `json:"failures"`
	Timeouts   int    `json:"timeouts"`
}

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL,
		code TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		stdout TEXT NOT NULL DEFAULT '',
		stderr TEXT NOT NULL DEFAULT '',
		timed_out INTEGER NOT NULL DEFAULT 0,
		streamed INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_executions_session ON executions(session_id);
	CREATE INDEX IF NOT EXISTS idx_executions_language ON executions(language);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordExecution inserts e and returns its id.
func (s *Storage) RecordExecution(ctx context.Context, e *Execution) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (session_id, language, code, exit_code, stdout, stderr, timed_out, streamed, duration_ms, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Language, e.Code, e.ExitCode, e.Stdout, e.Stderr,
		e.TimedOut, e.Streamed, e.Duration, e.StartedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

// ListExecutions returns the newest executions of a session first. An empty
// sessionID lists across all sessions.
func (s *Storage) ListExecutions(ctx context.Context, sessionID string, limit int) ([]*Execution, error) {
	query := `SELECT id, session_id, language, code, exit_code, stdout, stderr, timed_out, streamed, duration_ms, started_at
		 FROM executions`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Execution, 0)
	for rows.Next() {
		var e Execution
		err := rows.Scan(
			&e.ID, &e.SessionID, &e.Language, &e.Code, &e.ExitCode,
			&e.Stdout, &e.Stderr, &e.TimedOut, &e.Streamed, &e.Duration, &e.StartedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// LanguageStats aggregates the whole log per language, sorted by language.
func (s *Storage) LanguageStats(ctx context.Context) ([]Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT language, COUNT(*),
		        SUM(CASE WHEN exit_code != 0 THEN 1 ELSE 0 END),
		        SUM(timed_out)
		 FROM executions GROUP BY language ORDER BY language`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Stats, 0)
	for rows.Next() {
		var st Stats
		if err := rows.Scan(&st.Language, &st.Executions, &st.Failures, &st.Timeouts); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// DeleteSession drops the log entries of a session.
func (s *Storage) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
