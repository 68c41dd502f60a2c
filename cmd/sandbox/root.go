package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run code in persistent session directories",
	Long: `sandbox - Execute code for Python, JavaScript, TypeScript, Ruby, shells,
Lua and any interpreter listed in a languages file.

Every execution runs as a child process inside a session directory. Later
executions in the same session see the definitions of earlier successful
ones. Serve the engine over HTTP and WebSocket with "serve", or to an MCP
client over stdio with "mcp".

Defaults come from the environment (EXECUTION_TIMEOUT, SESSION_BASE_DIR,
LANGUAGES_FILE, EXECUTION_LOG_DB, TRACE_OUTPUT, PORT); flags override them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

// exitCodeError carries the exit status of executed code out of a command.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command. Interrupts cancel the command's context,
// which terminates running code and stops the servers.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.code)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().Duration("timeout", 0, "Execution timeout (default from EXECUTION_TIMEOUT or 30s)")
	rootCmd.PersistentFlags().String("session-dir", "", "Directory holding session directories")
	rootCmd.PersistentFlags().String("languages", "", "YAML file extending the language table")
	rootCmd.PersistentFlags().String("log-db", "", "SQLite file recording every execution")
	rootCmd.PersistentFlags().String("trace", "", "Export spans to this file, or - for stdout")
}
