package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"code-sandbox/internal/realtime"
	"code-sandbox/internal/session"
	"code-sandbox/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API and WebSocket feed",
	Long: `Serve the execution engine over HTTP.

REST endpoints execute and validate code and inspect sessions. Clients
connected to /ws receive every session's execution events, session
lifecycle changes and file count updates as they happen.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Listen port (default from PORT or 8420)")
	serveCmd.Flags().String("static", "", "Serve static files from this directory at /")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	staticDir, _ := cmd.Flags().GetString("static")

	// The store reports lifecycle changes to the server created below.
	var rtServer *realtime.Server
	a, err := newApp(cfg, session.WithHooks(
		func(s session.Session) {
			if rtServer != nil {
				rtServer.OnSessionCreated(s)
			}
		},
		func(s session.Session) {
			if rtServer != nil {
				rtServer.OnSessionRemoved(s)
			}
		},
	))
	if err != nil {
		return err
	}
	defer a.Close()

	fileWatch := watcher.New(func(sessionID string, fileCount int) {
		if rtServer != nil {
			rtServer.OnFileUpdate(sessionID, fileCount)
		}
	})
	defer fileWatch.Shutdown()

	opts := []realtime.Option{realtime.WithStaticDir(staticDir)}
	if a.execLog != nil {
		opts = append(opts, realtime.WithExecutionLog(a.execLog))
	}
	rtServer = realtime.New(a.exec, fileWatch, opts...)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           rtServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		rtServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ExecutionTimeout+5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("Code sandbox server running on http://localhost:%d", cfg.Port)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}
