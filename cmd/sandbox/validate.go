package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"code-sandbox/internal/executor"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check code syntax without running it",
	Long: `Run the language's check-only mode over the code and report the first
syntax error with its line, if any. With --save, accepted code is written
into the session's data directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	addSourceFlags(validateCmd)
	validateCmd.Flags().Bool("save", false, "Save accepted code into the session")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	code, file, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("no code given: use a file argument, --code or stdin")
	}

	a, err := newApp(loadConfig(cmd))
	if err != nil {
		return err
	}

	req := executor.ValidateRequest{Code: code}
	req.SessionID, _ = cmd.Flags().GetString("session")
	req.Filename, _ = cmd.Flags().GetString("filename")
	req.Save, _ = cmd.Flags().GetBool("save")
	if req.Save {
		// Saved files must outlive this process.
		defer a.release()
	} else {
		defer a.Close()
	}

	langFlag, _ := cmd.Flags().GetString("lang")
	if req.Language, err = detectLanguage(a.exec.Runner().Languages(), langFlag, file); err != nil {
		return err
	}

	v, err := a.exec.Validate(cmd.Context(), req)
	if err != nil {
		return err
	}
	if v.Valid {
		fmt.Fprintln(cmd.OutOrStdout(), v.Message)
		return nil
	}

	fmt.Fprintln(cmd.ErrOrStderr(), v.Message)
	if v.Details != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "Details:", v.Details)
	}
	return &exitCodeError{code: 1}
}
