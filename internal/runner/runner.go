// Package runner spawns one OS process per execution, enforces a wall-clock
// deadline with escalating termination signals and reports the outcome either
// as a buffered Result or as a stream of Events.
//
// The runner does not sandbox anything: it scopes HOME and the working
// directory and relies on the surrounding environment for isolation.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"code-sandbox/internal/language"
)

const (
	// DefaultTimeout is used when no EXECUTION_TIMEOUT is configured.
	DefaultTimeout = 30 * time.Second

	defaultGracePeriod  = 100 * time.Millisecond
	defaultDrainTimeout = 500 * time.Millisecond
	readerBufSize       = 64 * 1024

	timeoutMessage  = "Execution timeout exceeded"
	canceledMessage = "Execution canceled"
)

// Logger receives best-effort diagnostics.
type Logger interface {
	Printf(format string, args ...any)
}

// Runner executes source code with the interpreters of a language registry.
type Runner struct {
	languages *language.Registry
	timeout   time.Duration
	grace     time.Duration
	drain     time.Duration
	logger    Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the wall-clock deadline of one execution.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithGracePeriod sets the delay between the termination and kill signals.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) {
		r.grace = d
	}
}

// WithDrainTimeout bounds how long output readers are waited for once the
// process has exited.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.drain = d
	}
}

// WithLogger replaces the standard logger.
func WithLogger(l Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a runner for the given registry.
func New(languages *language.Registry, opts ...Option) *Runner {
	r := &Runner{
		languages: languages,
		timeout:   DefaultTimeout,
		grace:     defaultGracePeriod,
		drain:     defaultDrainTimeout,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Languages returns the registry the runner resolves languages against.
func (r *Runner) Languages() *language.Registry {
	return r.languages
}

// Timeout returns the execution deadline.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Request describes one execution.
type Request struct {
	Language string
	Code     string
	// Dir is the working directory. Empty means a fresh temporary
	// directory that is removed after the run.
	Dir string
	// Filename overrides the default main<ext> source file name.
	Filename string
}

// Result is the outcome of one execution.
type Result struct {
	Stdout    string        `json:"output"`
	Stderr    string        `json:"error"`
	ExitCode  int           `json:"exitCode"`
	Elapsed   time.Duration `json:"elapsed"`
	SavedPath string        `json:"savedPath,omitempty"`
	// Failure is set when ExitCode is -1: it matches ErrTimeout,
	// ErrCanceled or ErrSpawn.
	Failure error `json:"-"`
}

// TimedOut reports whether the process was terminated by the deadline.
func (r Result) TimedOut() bool {
	return errors.Is(r.Failure, ErrTimeout)
}

// SourceFilename returns the file name code is written to: the base name of
// filename with the language extension appended when missing, or main<ext>.
func SourceFilename(d language.Descriptor, filename string) string {
	name := filepath.Base(filename)
	if filename == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "main" + d.Extension
	}
	if !strings.HasSuffix(name, d.Extension) {
		name += d.Extension
	}
	return name
}

// Environ returns the current environment with HOME pointed at home.
func Environ(home string) []string {
	env := os.Environ()
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if strings.HasPrefix(kv, "HOME=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, "HOME="+home)
}

type prepared struct {
	desc    language.Descriptor
	dir     string
	path    string
	cleanup func()
}

// prepare resolves the language and writes the source file.
func (r *Runner) prepare(req Request) (prepared, error) {
	desc, ok := r.languages.Lookup(req.Language)
	if !ok {
		return prepared{}, &UnsupportedLanguageError{Language: req.Language}
	}

	dir := req.Dir
	cleanup := func() {}
	if dir == "" {
		tmp, err := os.MkdirTemp("", "code-sandbox-")
		if err != nil {
			return prepared{}, fmt.Errorf("create working directory: %w", err)
		}
		dir = tmp
		cleanup = func() { os.RemoveAll(tmp) }
	}

	path := filepath.Join(dir, SourceFilename(desc, req.Filename))
	if err := os.WriteFile(path, []byte(req.Code), 0o644); err != nil {
		cleanup()
		return prepared{}, fmt.Errorf("write source file: %w", err)
	}

	return prepared{desc: desc, dir: dir, path: path, cleanup: cleanup}, nil
}

// Execute runs req to completion and returns its buffered, trimmed output.
// The returned error is non-nil only when nothing was spawned because the
// language is unknown or the source file could not be written.
func (r *Runner) Execute(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	p, err := r.prepare(req)
	if err != nil {
		return Result{ExitCode: -1, Elapsed: time.Since(start)}, err
	}
	defer p.cleanup()

	res := r.Capture(ctx, p.desc.Argv(p.path), p.dir)
	if req.Filename != "" && req.Dir != "" {
		res.SavedPath = p.path
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

// Capture runs argv in dir with both streams buffered, under the runner's
// deadline. It is the building block shared by Execute and syntax checks.
func (r *Runner) Capture(ctx context.Context, argv []string, dir string) Result {
	start := time.Now()

	var stdout, stderr bytes.Buffer
	cmd := r.command(argv, dir)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode, failure := r.run(ctx, cmd)

	res := Result{
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		ExitCode: exitCode,
		Failure:  failure,
	}
	if failure != nil {
		res.Stderr = failureMessage(failure)
	}
	res.Elapsed = time.Since(start)
	return res
}

func (r *Runner) command(argv []string, dir string) *exec.Cmd {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = Environ(dir)
	// Orphaned grandchildren holding the output pipes must not hang Wait.
	cmd.WaitDelay = r.drain
	setProcessGroup(cmd)
	return cmd
}

// run starts cmd and races it against the deadline.
func (r *Runner) run(ctx context.Context, cmd *exec.Cmd) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := cmd.Start(); err != nil {
		return -1, &SpawnError{Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil && !isExitError(err) {
			r.logf("wait %s: %v", cmd.Path, err)
		}
		return exitStatus(cmd.ProcessState), nil
	case <-ctx.Done():
		return -1, r.abort(ctx, cmd, done)
	}
}

// abort terminates cmd after ctx is done and waits for Wait to return.
func (r *Runner) abort(ctx context.Context, cmd *exec.Cmd, done <-chan error) error {
	terminate(cmd.Process, r.grace)
	<-done
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrCanceled
}

func (r *Runner) logf(format string, args ...any) {
	r.logger.Printf("runner: "+format, args...)
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return timeoutMessage
	case errors.Is(err, ErrCanceled):
		return canceledMessage
	default:
		return err.Error()
	}
}
