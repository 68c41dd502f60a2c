package main

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"code-sandbox/internal/language"
)

// resetFlags restores every flag of every command to its default, since the
// command tree is shared across tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func executeCommand(root *cobra.Command, args ...string) (string, string, error) {
	resetFlags(root)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func TestCLIHelp(t *testing.T) {
	output, _, err := executeCommand(rootCmd, "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{"sandbox", "serve", "mcp", "run", "validate", "languages", "--timeout", "--session-dir"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLIRunInline(t *testing.T) {
	requireBash(t)
	dir := t.TempDir()

	stdout, stderr, err := executeCommand(rootCmd, "run", "--session-dir", dir, "-l", "bash", "-c", "echo hello; echo warn >&2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout != "hello\n" {
		t.Errorf("unexpected stdout %q", stdout)
	}
	if stderr != "warn\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected session directories to be removed, found %d", len(entries))
	}
}

func TestCLIRunFileDetectsLanguage(t *testing.T) {
	requireBash(t)
	script := filepath.Join(t.TempDir(), "job.sh")
	os.WriteFile(script, []byte("echo from file\n"), 0644)

	stdout, _, err := executeCommand(rootCmd, "run", "--session-dir", t.TempDir(), script)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout != "from file\n" {
		t.Errorf("unexpected stdout %q", stdout)
	}
}

func TestCLIRunStream(t *testing.T) {
	requireBash(t)

	stdout, _, err := executeCommand(rootCmd, "run", "--session-dir", t.TempDir(), "--stream", "-l", "bash", "-c", "echo a; echo b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout != "a\nb\n" {
		t.Errorf("unexpected stdout %q", stdout)
	}
}

func TestCLIRunExitCode(t *testing.T) {
	requireBash(t)

	_, _, err := executeCommand(rootCmd, "run", "--session-dir", t.TempDir(), "-l", "bash", "-c", "exit 7")
	var exitErr *exitCodeError
	if !errors.As(err, &exitErr) || exitErr.code != 7 {
		t.Fatalf("expected exit code 7, got %v", err)
	}
}

func TestCLIRunTimeout(t *testing.T) {
	requireBash(t)

	_, stderr, err := executeCommand(rootCmd, "run", "--session-dir", t.TempDir(), "--timeout", "200ms", "-l", "bash", "-c", "sleep 5")
	var exitErr *exitCodeError
	if !errors.As(err, &exitErr) || exitErr.code != timeoutExitCode {
		t.Fatalf("expected timeout exit code, got %v", err)
	}
	if !strings.Contains(stderr, "Execution timeout exceeded") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestCLIRunKeepResumesSession(t *testing.T) {
	requireBash(t)
	dir := t.TempDir()

	_, _, err := executeCommand(rootCmd, "run", "--session-dir", dir, "--keep", "-s", "kept", "-l", "bash", "-c", "echo saved > note.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stdout, _, err := executeCommand(rootCmd, "run", "--session-dir", dir, "-s", "kept", "-l", "bash", "-c", "cat note.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout != "saved\n" {
		t.Errorf("unexpected stdout %q", stdout)
	}
}

func TestCLIRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no code", []string{"run", "-l", "bash"}, "no code given"},
		{"no language", []string{"run", "-c", "print(1)"}, "language required"},
		{"unsupported", []string{"run", "-l", "cobol", "-c", "x"}, "Unsupported language: cobol"},
		{"missing file", []string{"run", "/does/not/exist.py"}, "reading file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--session-dir", t.TempDir())
			_, _, err := executeCommand(rootCmd, args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCLIValidateLua(t *testing.T) {
	stdout, _, err := executeCommand(rootCmd, "validate", "--session-dir", t.TempDir(), "-l", "lua", "-c", "print(1)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout != "Syntax validation successful\n" {
		t.Errorf("unexpected stdout %q", stdout)
	}

	_, stderr, err := executeCommand(rootCmd, "validate", "--session-dir", t.TempDir(), "-l", "lua", "-c", "print(")
	var exitErr *exitCodeError
	if !errors.As(err, &exitErr) || exitErr.code != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if stderr == "" {
		t.Error("expected the syntax error on stderr")
	}
}

func TestCLIValidateSave(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := executeCommand(rootCmd, "validate", "--session-dir", dir, "--save", "-s", "v", "--filename", "init", "-l", "lua", "-c", "x = 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	saved := filepath.Join(dir, "mcp-session-v", "data", "init.lua")
	if !strings.Contains(stdout, "(saved to "+saved+")") {
		t.Errorf("unexpected stdout %q", stdout)
	}
	if _, err := os.Stat(saved); err != nil {
		t.Errorf("expected saved file to survive: %v", err)
	}
}

func TestCLILanguages(t *testing.T) {
	stdout, _, err := executeCommand(rootCmd, "languages")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range language.Default().Names() {
		if !strings.Contains(stdout, id) {
			t.Errorf("expected %s in the language list", id)
		}
	}
}

func TestCLILanguagesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "languages.yaml")
	os.WriteFile(file, []byte("languages:\n  awk:\n    command: [awk, -f]\n    extension: .awk\n"), 0644)

	stdout, _, err := executeCommand(rootCmd, "languages", "--languages", file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "awk -f") {
		t.Errorf("expected the file's language in %q", stdout)
	}
}

func TestDetectLanguage(t *testing.T) {
	reg := language.Default()

	tests := []struct {
		flag, file, want string
		wantErr          bool
	}{
		{"ruby", "x.py", "ruby", false},
		{"", "dir/app.PY", "python", false},
		{"", "run.sh", "bash", false},
		{"", "notes.txt", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		got, err := detectLanguage(reg, tt.flag, tt.file)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("detectLanguage(%q, %q) = %q, %v", tt.flag, tt.file, got, err)
		}
	}
}
