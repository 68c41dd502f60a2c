// Package protocol defines the WebSocket message envelope and payloads.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"code-sandbox/internal/runner"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeExecutionEvent   = "execution.event"
	TypeValidationResult = "validation.result"
	TypeSessionUpdate    = "session.update"
	TypeSessionRemoved   = "session.removed"
	TypeFilesUpdate      = "files.update"
	TypeFilesTree        = "files.tree"
	TypeError            = "error"
)

// Client → Server message types.
const (
	TypeExecute          = "execute"
	TypeValidate         = "validate"
	TypeSessionReset     = "session.reset"
	TypeFilesRequestTree = "files.requestTree"
)

// Error codes.
const (
	ErrSessionNotFound     = "SESSION_NOT_FOUND"
	ErrInvalidMessage      = "INVALID_MESSAGE"
	ErrInvalidSession      = "INVALID_SESSION"
	ErrUnsupportedLanguage = "UNSUPPORTED_LANGUAGE"
	ErrExecutionFailed     = "EXECUTION_FAILED"
	ErrValidationFailed    = "VALIDATION_FAILED"
)

// ResetAll is the session id that resets every session.
const ResetAll = "all"

// Server → Client payloads.

type ExecutionEventPayload struct {
	SessionID string       `json:"sessionId"`
	Event     runner.Event `json:"event"`
}

type ValidationResultPayload struct {
	Language  string `json:"language"`
	Valid     bool   `json:"valid"`
	Message   string `json:"message"`
	Line      int    `json:"line,omitempty"`
	Column    int    `json:"column,omitempty"`
	Details   string `json:"details,omitempty"`
	SavedPath string `json:"savedPath,omitempty"`
}

type SessionUpdatePayload struct {
	ID             string `json:"id"`
	CreatedAt      string `json:"createdAt"`
	LastAccessedAt string `json:"lastAccessedAt"`
	ExecutionCount int    `json:"executionCount"`
}

type SessionRemovedPayload struct {
	SessionID string `json:"sessionId"`
}

type FilesUpdatePayload struct {
	SessionID string `json:"sessionId"`
	FileCount int    `json:"fileCount"`
}

type FilesTreePayload struct {
	SessionID string     `json:"sessionId"`
	Tree      []FileNode `json:"tree"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client → Server payloads.

type ExecutePayload struct {
	SessionID    string `json:"sessionId,omitempty"`
	Language     string `json:"language"`
	Code         string `json:"code"`
	Filename     string `json:"filename,omitempty"`
	ResetSession bool   `json:"resetSession,omitempty"`
}

type ValidatePayload struct {
	Language  string `json:"language"`
	Code      string `json:"code"`
	Filename  string `json:"filename,omitempty"`
	Save      bool   `json:"save,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// SessionResetPayload names the session to reset. An empty id or ResetAll
// resets every session.
type SessionResetPayload struct {
	SessionID string `json:"sessionId"`
}

type SessionIDPayload struct {
	SessionID string `json:"sessionId"`
}

// FileNode represents a file or directory in the tree.
type FileNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	IsDir    bool       `json:"isDir"`
	Children []FileNode `json:"children,omitempty"`
	Size     int64      `json:"size,omitempty"`
}
