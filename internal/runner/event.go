package runner

import (
	"encoding/json"
	"time"
)

// Kind distinguishes the variants of a streaming Event.
type Kind string

const (
	KindContent  Kind = "content"
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
)

// Role tags what a Content event carries.
type Role string

const (
	RoleCode   Role = "code"
	RoleStdout Role = "stdout"
	RoleStderr Role = "stderr"
	RoleResult Role = "result"
	RoleError  Role = "error"
)

// Event is one unit of a streaming execution report. Exactly one of
// Content, Progress or Complete is set, matching Kind.
type Event struct {
	Kind     Kind      `json:"type"`
	Content  *Content  `json:"content,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
	Complete *Complete `json:"complete,omitempty"`
}

// Content carries source, an output line, a summary or an error.
type Content struct {
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	MimeType string `json:"mimeType,omitempty"`
	Streamed bool   `json:"streamed,omitempty"`
	Final    bool   `json:"final,omitempty"`
	Timeout  bool   `json:"timeout,omitempty"`
}

// Progress marks the start of execution.
type Progress struct {
	Operation string    `json:"operation"`
	Language  string    `json:"language"`
	Timestamp time.Time `json:"timestamp"`
}

// Complete is always the last event of a streaming execution.
type Complete struct {
	ExitCode  int       `json:"exitCode"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the JSON body of the final result event.
type Summary struct {
	ExitCode        int    `json:"exitCode"`
	OutputLineCount int    `json:"outputLineCount"`
	ErrorLineCount  int    `json:"errorLineCount"`
	Timestamp       string `json:"timestamp"`
}

// EmitFunc receives streaming events. It is only ever called from the
// goroutine that invoked ExecuteStreaming.
type EmitFunc func(Event)

func contentEvent(c Content) Event {
	return Event{Kind: KindContent, Content: &c}
}

func codeEvent(code, mimeType string) Event {
	return contentEvent(Content{Role: RoleCode, Text: code, MimeType: mimeType})
}

func progressEvent(language string, now time.Time) Event {
	return Event{Kind: KindProgress, Progress: &Progress{
		Operation: "executing",
		Language:  language,
		Timestamp: now,
	}}
}

func outputEvent(role Role, text string) Event {
	return contentEvent(Content{Role: role, Text: text, Streamed: true})
}

func resultEvent(s Summary) Event {
	text, _ := json.MarshalIndent(s, "", "  ")
	return contentEvent(Content{
		Role:     RoleResult,
		Text:     string(text),
		MimeType: "application/json",
		Final:    true,
	})
}

func completeEvent(exitCode int, now time.Time) Event {
	return Event{Kind: KindComplete, Complete: &Complete{ExitCode: exitCode, Timestamp: now}}
}

// IsFinal reports whether e is the final result content.
func (e Event) IsFinal() bool {
	return e.Kind == KindContent && e.Content != nil && e.Content.Final
}
