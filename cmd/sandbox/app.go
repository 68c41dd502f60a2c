package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"code-sandbox/internal/config"
	"code-sandbox/internal/executor"
	"code-sandbox/internal/language"
	"code-sandbox/internal/runner"
	"code-sandbox/internal/session"
	"code-sandbox/internal/storage"
	"code-sandbox/internal/syntax"
	"code-sandbox/internal/tracing"
)

// app is the engine wired from configuration and flags.
type app struct {
	cfg     config.Config
	exec    *executor.Executor
	store   *session.Store
	execLog *storage.Storage

	shutdownTracing tracing.Shutdown
}

// loadConfig reads the environment and applies the persistent flags that
// were set explicitly.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.Load()
	flags := cmd.Flags()

	if flags.Changed("timeout") {
		if d, _ := flags.GetDuration("timeout"); d > 0 {
			cfg.ExecutionTimeout = d
		}
	}
	if flags.Changed("session-dir") {
		cfg.SessionBaseDir, _ = flags.GetString("session-dir")
	}
	if flags.Changed("languages") {
		cfg.LanguagesFile, _ = flags.GetString("languages")
	}
	if flags.Changed("log-db") {
		cfg.ExecutionLogDB, _ = flags.GetString("log-db")
	}
	if flags.Changed("trace") {
		cfg.TraceOutput, _ = flags.GetString("trace")
	}
	return cfg
}

// newApp builds the engine. Store hooks are attached at construction, so
// callers that need them pass them here.
func newApp(cfg config.Config, storeOpts ...session.Option) (*app, error) {
	a := &app{cfg: cfg}

	languages := language.Default()
	if cfg.LanguagesFile != "" {
		var err error
		if languages, err = language.LoadFile(cfg.LanguagesFile); err != nil {
			return nil, err
		}
	}

	if cfg.TraceOutput != "" {
		out := cfg.TraceOutput
		if out == "-" {
			out = ""
		}
		shutdown, err := tracing.Init("code-sandbox", version, out)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.shutdownTracing = shutdown
	}

	r := runner.New(languages, runner.WithTimeout(cfg.ExecutionTimeout))
	execOpts := []executor.Option{executor.WithChecker(syntax.New(r))}

	if cfg.ExecutionLogDB != "" {
		st, err := storage.New(cfg.ExecutionLogDB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open execution log: %w", err)
		}
		a.execLog = st
		execOpts = append(execOpts, executor.WithRecorder(st))
	}

	storeOpts = append([]session.Option{session.WithBaseDir(cfg.SessionBaseDir)}, storeOpts...)
	a.store = session.NewStore(storeOpts...)
	a.exec = executor.New(a.store, r, execOpts...)
	return a, nil
}

// Close removes every session directory and releases the execution log and
// the tracer.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(append(errs, a.release())...)
}

// release closes the execution log and flushes spans, leaving session
// directories on disk.
func (a *app) release() error {
	var errs []error
	if a.execLog != nil {
		errs = append(errs, a.execLog.Close())
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			log.Printf("flush traces: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
