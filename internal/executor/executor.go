// Package executor gives the illusion of persistent interpreter state by
// running each submission inside a session directory behind the replayed
// history of earlier successful submissions.
//
// Runs on the same session are not serialised. Two concurrent runs may both
// read the history before either appends to it, so one may miss the other's
// definitions, and their appends may land in either order.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"code-sandbox/internal/history"
	"code-sandbox/internal/runner"
	"code-sandbox/internal/session"
	"code-sandbox/internal/storage"
	"code-sandbox/internal/tracing"
)

// DefaultSessionID is used when a request names no session.
const DefaultSessionID = "default"

// Logger receives best-effort failures.
type Logger interface {
	Printf(format string, args ...any)
}

// Recorder persists a log entry per execution. *storage.Storage satisfies it.
type Recorder interface {
	RecordExecution(ctx context.Context, e *storage.Execution) (int64, error)
}

// Validator checks source without running it. *syntax.Checker satisfies it.
type Validator interface {
	Validate(ctx context.Context, language, code string) error
}

// Request is one submission.
type Request struct {
	SessionID string `json:"sessionId,omitempty"`
	Language  string `json:"language"`
	Code      string `json:"code"`
	// Filename, when set, saves the submission as given into the session's
	// data directory and reports the path as Result.SavedPath. The code that
	// runs, history included, always uses the default source name.
	Filename     string `json:"filename,omitempty"`
	ResetSession bool   `json:"resetSession,omitempty"`
}

// Executor composes a session store, a runner and history replay.
type Executor struct {
	store    *session.Store
	runner   *runner.Runner
	recorder Recorder
	checker  Validator
	logger   Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRecorder logs every execution to r.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		e.recorder = r
	}
}

// WithChecker validates code before Save writes it.
func WithChecker(v Validator) Option {
	return func(e *Executor) {
		e.checker = v
	}
}

// WithLogger replaces the standard logger.
func WithLogger(l Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an executor.
func New(store *session.Store, r *runner.Runner, opts ...Option) *Executor {
	e := &Executor{
		store:  store,
		runner: r,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the session store.
func (e *Executor) Store() *session.Store {
	return e.store
}

// Runner returns the process runner.
func (e *Executor) Runner() *runner.Runner {
	return e.runner
}

// Run executes req in its session and returns the buffered result. The error
// is non-nil only when nothing ran.
func (e *Executor) Run(ctx context.Context, req Request) (runner.Result, error) {
	return e.run(ctx, req, nil)
}

// RunStreaming executes req in its session, reporting events through emit.
// Events are also recorded against the session for late subscribers. The
// code event carries the submission as given, without replayed history.
func (e *Executor) RunStreaming(ctx context.Context, req Request, emit runner.EmitFunc) (runner.Result, error) {
	if emit == nil {
		emit = func(runner.Event) {}
	}
	return e.run(ctx, req, emit)
}

func (e *Executor) run(ctx context.Context, req Request, emit runner.EmitFunc) (res runner.Result, err error) {
	if !e.runner.Languages().Supports(req.Language) {
		return runner.Result{ExitCode: -1}, &runner.UnsupportedLanguageError{Language: req.Language}
	}

	id := req.SessionID
	if id == "" {
		id = DefaultSessionID
	}

	ctx, span := tracing.StartSpan(ctx, "execute")
	span.WithAttributes(map[string]string{
		"session.id": id,
		"language":   req.Language,
		"streaming":  strconv.FormatBool(emit != nil),
	})
	defer func() {
		span.SetInt("exit_code", res.ExitCode)
		failure := err
		if failure == nil {
			failure = res.Failure
		}
		tracing.EndSpan(span, failure)
	}()

	if req.ResetSession {
		e.store.Clear(id)
	}
	sess, err := e.store.GetOrCreate(id)
	if err != nil {
		return runner.Result{ExitCode: -1}, err
	}
	if _, err := e.store.IncrementExecutions(id); err != nil {
		return runner.Result{ExitCode: -1}, err
	}

	historyPath := history.Path(sess.Dir, req.Language)
	code, herr := history.Prepare(req.Language, req.Code, historyPath)
	if herr != nil {
		e.logf("session %s: %v", id, herr)
	}

	var savedPath string
	if req.Filename != "" {
		if savedPath, err = e.writeSource(sess, req.Language, req.Code, req.Filename); err != nil {
			return runner.Result{ExitCode: -1}, err
		}
	}

	started := time.Now()
	rreq := runner.Request{Language: req.Language, Code: code, Dir: sess.Dir}
	if emit == nil {
		res, err = e.runner.Execute(ctx, rreq)
	} else {
		res, err = e.runner.ExecuteStreaming(ctx, rreq, e.recording(id, req.Code, emit))
	}
	if err != nil {
		return res, err
	}
	res.SavedPath = savedPath

	if res.ExitCode == 0 {
		if _, err := history.Append(historyPath, req.Language, req.Code); err != nil {
			e.logf("session %s: %v", id, err)
		}
	}
	e.record(ctx, id, req, res, started, emit != nil)
	return res, nil
}

// recording wraps emit so every event is stored against the session and the
// code event shows the original submission.
func (e *Executor) recording(id, code string, emit runner.EmitFunc) runner.EmitFunc {
	return func(ev runner.Event) {
		if ev.Kind == runner.KindContent && ev.Content != nil && ev.Content.Role == runner.RoleCode {
			c := *ev.Content
			c.Text = code
			ev.Content = &c
		}
		e.store.RecordEvent(id, ev)
		emit(ev)
	}
}

func (e *Executor) record(ctx context.Context, id string, req Request, res runner.Result, started time.Time, streamed bool) {
	if e.recorder == nil {
		return
	}
	_, err := e.recorder.RecordExecution(ctx, &storage.Execution{
		SessionID: id,
		Language:  req.Language,
		Code:      req.Code,
		ExitCode:  res.ExitCode,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		TimedOut:  res.TimedOut(),
		Streamed:  streamed,
		Duration:  res.Elapsed.Milliseconds(),
		StartedAt: started,
	})
	if err != nil {
		e.logf("session %s: record execution: %v", id, err)
	}
}

// Reset removes one session. It reports whether it existed.
func (e *Executor) Reset(id string) bool {
	return e.store.Clear(id)
}

// ResetAll removes every session and returns how many there were.
func (e *Executor) ResetAll() int {
	return e.store.ClearAll()
}

// Save validates code and writes it into the data directory of a session,
// creating the session when needed. It returns the written path.
func (e *Executor) Save(ctx context.Context, sessionID, language, code, filename string) (string, error) {
	if !e.runner.Languages().Supports(language) {
		return "", &runner.UnsupportedLanguageError{Language: language}
	}
	if e.checker != nil {
		if err := e.checker.Validate(ctx, language, code); err != nil {
			return "", err
		}
	}

	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	sess, err := e.store.GetOrCreate(sessionID)
	if err != nil {
		return "", err
	}
	return e.writeSource(sess, language, code, filename)
}

// writeSource stores code under the session's data directory.
func (e *Executor) writeSource(sess session.Session, language, code, filename string) (string, error) {
	desc, ok := e.runner.Languages().Lookup(language)
	if !ok {
		return "", &runner.UnsupportedLanguageError{Language: language}
	}
	path := filepath.Join(sess.DataDir(), runner.SourceFilename(desc, filename))
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

func (e *Executor) logf(format string, args ...any) {
	e.logger.Printf("executor: "+format, args...)
}

// IsUnsupported reports whether err rejected the language before any I/O.
func IsUnsupported(err error) bool {
	return errors.Is(err, runner.ErrUnsupportedLanguage)
}
