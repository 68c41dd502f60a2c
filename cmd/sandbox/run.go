package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"code-sandbox/internal/executor"
	"code-sandbox/internal/language"
	"code-sandbox/internal/runner"
)

// timeoutExitCode matches timeout(1).
const timeoutExitCode = 124

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run code in a session",
	Long: `Execute code in a session directory.

Code can be provided via:
  - File argument: sandbox run script.py
  - Inline flag: sandbox run -l python -c 'print(1+1)'
  - Stdin: echo 'print(1+1)' | sandbox run -l python

The session directory is removed on exit unless --keep is given; a kept
session resumes its history on the next run with the same --session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	addSourceFlags(runCmd)
	runCmd.Flags().Bool("stream", false, "Print output lines as they are produced")
	runCmd.Flags().Bool("reset", false, "Clear the session before running")
	runCmd.Flags().Bool("keep", false, "Keep the session directory after exit")
	rootCmd.AddCommand(runCmd)
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().StringP("lang", "l", "", "Language id (default: detect from the file extension)")
	cmd.Flags().StringP("session", "s", "", "Session id (default: "+executor.DefaultSessionID+")")
	cmd.Flags().String("filename", "", "Name to save the source under inside the session")
}

// readSource returns the code and, when it came from a file, the file name.
func readSource(cmd *cobra.Command, args []string) (code, filename string, err error) {
	inline, _ := cmd.Flags().GetString("code")
	switch {
	case inline != "":
		return inline, "", nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", fmt.Errorf("reading file: %w", err)
		}
		return string(data), args[0], nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), "", nil
	}
}

// detectLanguage prefers the --lang flag, then the registered extension of
// filename.
func detectLanguage(reg *language.Registry, langFlag, filename string) (string, error) {
	if langFlag != "" {
		return langFlag, nil
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		for _, d := range reg.All() {
			if d.Extension == ext {
				return d.ID, nil
			}
		}
	}
	return "", fmt.Errorf("language required: use --lang with one of %s", strings.Join(reg.Names(), ", "))
}

func runRun(cmd *cobra.Command, args []string) error {
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
	if keep, _ := cmd.Flags().GetBool("keep"); keep {
		defer a.release()
	} else {
		defer a.Close()
	}

	langFlag, _ := cmd.Flags().GetString("lang")
	lang, err := detectLanguage(a.exec.Runner().Languages(), langFlag, file)
	if err != nil {
		return err
	}

	req := executor.Request{Language: lang, Code: code}
	req.SessionID, _ = cmd.Flags().GetString("session")
	req.Filename, _ = cmd.Flags().GetString("filename")
	req.ResetSession, _ = cmd.Flags().GetBool("reset")

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	var res runner.Result
	if stream, _ := cmd.Flags().GetBool("stream"); stream {
		res, err = a.exec.RunStreaming(cmd.Context(), req, func(ev runner.Event) {
			if ev.Content == nil {
				return
			}
			switch ev.Content.Role {
			case runner.RoleStdout:
				fmt.Fprintln(stdout, ev.Content.Text)
			case runner.RoleStderr, runner.RoleError:
				fmt.Fprintln(stderr, ev.Content.Text)
			}
		})
	} else {
		res, err = a.exec.Run(cmd.Context(), req)
		if err == nil {
			if res.Stdout != "" {
				fmt.Fprintln(stdout, res.Stdout)
			}
			if res.Stderr != "" {
				fmt.Fprintln(stderr, res.Stderr)
			}
		}
	}
	if err != nil {
		return err
	}

	switch {
	case res.TimedOut():
		return &exitCodeError{code: timeoutExitCode}
	case res.ExitCode < 0:
		return &exitCodeError{code: 1}
	case res.ExitCode > 0:
		return &exitCodeError{code: res.ExitCode}
	}
	return nil
}
