package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"code-sandbox/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Serve execute_code, validate_code, reset_session and list_sessions to an
MCP client over stdin and stdout. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if cfg.TraceOutput == "-" {
		return errors.New("trace output to stdout would corrupt the stdio transport; use a file")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	err = mcpserver.New(a.exec, version).Run(cmd.Context())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
