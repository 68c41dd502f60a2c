// Package syntax runs each toolchain's check-only mode and turns its
// diagnostics into a ValidationError.
package syntax

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"code-sandbox/internal/runner"
)

// ErrInvalidSyntax is matched by every *ValidationError.
var ErrInvalidSyntax = errors.New("invalid syntax")

// ValidationError describes a rejected source text. Line and Column are zero
// when the toolchain did not report them; Details holds the offending line.
type ValidationError struct {
	Language string `json:"language"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Details  string `json:"details,omitempty"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches ErrInvalidSyntax.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidSyntax
}

// Capturer runs a command to completion and captures its output.
// *runner.Runner satisfies it.
type Capturer interface {
	Capture(ctx context.Context, argv []string, dir string) runner.Result
}

type strategy func(ctx context.Context, c *Checker, code string) error

// Checker dispatches validation by language id. It holds no per-call state
// and is safe for concurrent use.
type Checker struct {
	capture    Capturer
	lookPath   func(string) (string, error)
	strategies map[string]strategy
}

// New creates a checker that runs toolchains through c.
func New(c Capturer) *Checker {
	return &Checker{
		capture:  c,
		lookPath: exec.LookPath,
		strategies: map[string]strategy{
			"python":     checkPython,
			"ruby":       checkRuby,
			"javascript": checkJavaScript,
			"typescript": checkNothing,
			"bash":       checkShell("bash", "-n", "-c"),
			"zsh":        checkShell("zsh", "-n", "-c"),
			"fish":       checkShell("fish", "--no-execute", "-c"),
			"lua":        checkLua,
			"java":       checkJava,
			"kotlin":     checkKotlin,
			"scala":      checkScala,
			"groovy":     checkGroovy,
			"clojure":    checkClojure,
		},
	}
}

// Validate returns nil when code is accepted or no checker exists for
// language, a *ValidationError when it is rejected, and a plain error when
// the toolchain itself could not be run.
func (c *Checker) Validate(ctx context.Context, language, code string) error {
	check, ok := c.strategies[language]
	if !ok {
		return nil
	}
	return check(ctx, c, code)
}

// Supports reports whether a strategy exists for language.
func (c *Checker) Supports(language string) bool {
	_, ok := c.strategies[language]
	return ok
}

func checkNothing(context.Context, *Checker, string) error {
	return nil
}

// run executes argv inside a scratch directory that is removed afterwards.
// It returns the trimmed stderr of a failed check, or "" with ok set.
func (c *Checker) run(ctx context.Context, argv []string, dir string) (stderr string, ok bool, err error) {
	res := c.capture.Capture(ctx, argv, dir)
	if res.Failure != nil {
		return "", false, fmt.Errorf("run %s: %w", argv[0], res.Failure)
	}
	if res.ExitCode == 0 {
		return "", true, nil
	}
	return res.Stderr, false, nil
}

// inline runs a check that receives the code on its command line.
func (c *Checker) inline(ctx context.Context, argv []string) (string, bool, error) {
	dir, err := os.MkdirTemp("", "syntax-check-")
	if err != nil {
		return "", false, fmt.Errorf("create check directory: %w", err)
	}
	defer os.RemoveAll(dir)
	return c.run(ctx, argv, dir)
}

// withFile writes code to a file named name inside a scratch directory and
// runs the command built by argv against it. The file path is returned for
// diagnostics that echo it back.
func (c *Checker) withFile(ctx context.Context, name, code string, argv func(path string) []string) (stderr, path string, ok bool, err error) {
	dir, err := os.MkdirTemp("", "syntax-check-")
	if err != nil {
		return "", "", false, fmt.Errorf("create check directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path = filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", "", false, fmt.Errorf("write check file: %w", err)
	}
	stderr, ok, err = c.run(ctx, argv(path), dir)
	return stderr, path, ok, err
}

// sourceLine returns the 1-based line n of code, or "" when out of range.
// Trailing empty lines do not count.
func sourceLine(code string, n int) string {
	lines := strings.Split(code, "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}

func lineError(language, display string, line int, message, details string) *ValidationError {
	return &ValidationError{
		Language: language,
		Message:  fmt.Sprintf("%s syntax error on line %d: %s", display, line, message),
		Line:     line,
		Details:  details,
	}
}

func genericError(language, display, stderr string) *ValidationError {
	return &ValidationError{
		Language: language,
		Message:  fmt.Sprintf("%s syntax error: %s", display, strings.TrimSpace(stderr)),
	}
}
