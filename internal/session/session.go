package session

import (
	"path/filepath"
	"time"

	"code-sandbox/internal/runner"
)

// Session is a working directory that outlives individual executions.
// Values returned by the Store are snapshots.
type Session struct {
	ID             string    `json:"id"`
	Dir            string    `json:"dir"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	ExecutionCount int       `json:"executionCount"`
}

// DataDir is where saved source files go.
func (s Session) DataDir() string {
	return filepath.Join(s.Dir, "data")
}

// OutputDir is reserved for files produced by executions.
func (s Session) OutputDir() string {
	return filepath.Join(s.Dir, "output")
}

// Info is the listing view of a session.
type Info struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	ExecutionCount int       `json:"executionCount"`
	Expired        bool      `json:"expired"`
}

// Event is a streaming execution event recorded against a session so that
// late subscribers can catch up.
type Event struct {
	SessionID string       `json:"sessionId"`
	Event     runner.Event `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
}
