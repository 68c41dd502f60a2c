// Package mcpserver exposes the executor as Model Context Protocol tools
// over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"code-sandbox/internal/executor"
	"code-sandbox/internal/protocol"
)

// Name identifies the server to MCP clients.
const Name = "code-sandbox"

// Logger receives tool failures.
type Logger interface {
	Printf(format string, args ...any)
}

// Server registers the sandbox tools on an MCP server.
type Server struct {
	exec   *executor.Executor
	server *mcp.Server
	logger Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger replaces the standard logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

type executeInput struct {
	Language     string `json:"language" jsonschema:"programming language"`
	Code         string `json:"code" jsonschema:"code to execute"`
	SessionID    string `json:"session_id,omitempty" jsonschema:"session to run in; defaults to the shared default session"`
	Filename     string `json:"filename,omitempty" jsonschema:"file name to save the code under inside the session"`
	ResetSession bool   `json:"reset_session,omitempty" jsonschema:"clear the session before running"`
}

type validateInput struct {
	Language  string `json:"language" jsonschema:"programming language"`
	Code      string `json:"code" jsonschema:"code to validate"`
	Filename  string `json:"filename,omitempty" jsonschema:"optional filename to use for validation context"`
	Save      bool   `json:"save,omitempty" jsonschema:"save the file to the session directory after validation"`
	SessionID string `json:"session_id,omitempty" jsonschema:"session to save into"`
}

type resetInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session to reset, or all"`
}

type listInput struct{}

// New creates the MCP server and registers its tools.
func New(exec *executor.Executor, version string, opts ...Option) *Server {
	s := &Server{
		exec:   exec,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	languages := strings.Join(exec.Runner().Languages().Names(), ", ")
	s.server = mcp.NewServer(&mcp.Implementation{Name: Name, Version: version}, nil)
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "execute_code",
		Description: "Execute code in a session directory. Definitions from earlier successful runs " +
			"in the same session are replayed. Supports " + languages + ".",
	}, s.executeCode)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "validate_code",
		Description: "Validate code syntax before execution. Returns syntax errors with line numbers when available.",
	}, s.validateCode)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "reset_session",
		Description: "Clear session state for clean restarts. Omit session_id or pass \"all\" to reset every session.",
	}, s.resetSession)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List live sessions with their execution counts.",
	}, s.listSessions)

	return s
}

// MCP returns the underlying server, for callers that bring their own
// transport.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) executeCode(ctx context.Context, _ *mcp.CallToolRequest, in executeInput) (*mcp.CallToolResult, any, error) {
	res, err := s.exec.Run(ctx, executor.Request{
		SessionID:    in.SessionID,
		Language:     in.Language,
		Code:         in.Code,
		Filename:     in.Filename,
		ResetSession: in.ResetSession,
	})
	if err != nil {
		if !executor.IsUnsupported(err) {
			s.logger.Printf("mcp: execute_code: %v", err)
		}
		return errorResult("Error: " + err.Error()), nil, nil
	}

	content := []mcp.Content{s.codeBlock(in.Language, in.Code)}
	if res.Stdout != "" {
		content = append(content, textBlock(res.Stdout, mcp.Meta{"role": "stdout"}))
	}
	if res.Stderr != "" {
		content = append(content, textBlock(res.Stderr, mcp.Meta{"role": "stderr"}))
	}

	lines := []string{
		fmt.Sprintf("Exit code: %d", res.ExitCode),
		fmt.Sprintf("Execution time: %.2fs", res.Elapsed.Seconds()),
	}
	if res.SavedPath != "" {
		lines = append(lines, "Saved to: "+res.SavedPath)
	}
	content = append(content, textBlock(strings.Join(lines, "\n"), mcp.Meta{"final": true}))

	return &mcp.CallToolResult{Content: content}, nil, nil
}

func (s *Server) validateCode(ctx context.Context, _ *mcp.CallToolRequest, in validateInput) (*mcp.CallToolResult, any, error) {
	v, err := s.exec.Validate(ctx, executor.ValidateRequest{
		SessionID: in.SessionID,
		Language:  in.Language,
		Code:      in.Code,
		Filename:  in.Filename,
		Save:      in.Save,
	})
	if err != nil {
		if !executor.IsUnsupported(err) {
			s.logger.Printf("mcp: validate_code: %v", err)
		}
		return errorResult("Validation error: " + err.Error()), nil, nil
	}

	if !v.Valid {
		text := v.Message
		if v.Details != "" {
			text += "\nDetails: " + v.Details
		}
		meta := mcp.Meta{"status": "invalid"}
		if v.Line > 0 {
			meta["line"] = v.Line
		}
		if v.Column > 0 {
			meta["column"] = v.Column
		}
		return &mcp.CallToolResult{Content: []mcp.Content{textBlock(text, meta)}, IsError: true}, nil, nil
	}

	return &mcp.CallToolResult{Content: []mcp.Content{
		s.codeBlock(in.Language, in.Code),
		textBlock(v.Message, mcp.Meta{"status": "valid"}),
	}}, nil, nil
}

func (s *Server) resetSession(_ context.Context, _ *mcp.CallToolRequest, in resetInput) (*mcp.CallToolResult, any, error) {
	if in.SessionID == "" || in.SessionID == protocol.ResetAll {
		n := s.exec.ResetAll()
		return textResult(fmt.Sprintf("All sessions reset (%d cleared).", n)), nil, nil
	}
	if !s.exec.Reset(in.SessionID) {
		return errorResult("Session not found: " + in.SessionID), nil, nil
	}
	return textResult("Session " + in.SessionID + " reset."), nil, nil
}

func (s *Server) listSessions(context.Context, *mcp.CallToolRequest, listInput) (*mcp.CallToolResult, any, error) {
	sessions := s.exec.Store().List()
	if len(sessions) == 0 {
		return textResult("No active sessions."), nil, nil
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode sessions: %w", err)
	}
	return textResult(string(data)), nil, nil
}

func (s *Server) codeBlock(language, code string) *mcp.TextContent {
	return textBlock(code, mcp.Meta{
		"role":     "code",
		"mimeType": s.exec.Runner().Languages().MimeTypeFor(language),
	})
}

func textBlock(text string, meta mcp.Meta) *mcp.TextContent {
	return &mcp.TextContent{Text: text, Meta: meta}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}, IsError: true}
}
