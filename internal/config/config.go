// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"code-sandbox/internal/runner"
)

// Config holds server configuration, loaded from environment variables.
type Config struct {
	// ExecutionTimeout bounds every execution (EXECUTION_TIMEOUT, seconds).
	ExecutionTimeout time.Duration
	// Port is the HTTP listen port of the serve command (PORT).
	Port int
	// SessionBaseDir holds session directories (SESSION_BASE_DIR).
	SessionBaseDir string
	// LanguagesFile optionally extends the language table (LANGUAGES_FILE).
	LanguagesFile string
	// ExecutionLogDB enables the SQLite execution log (EXECUTION_LOG_DB).
	ExecutionLogDB string
	// TraceOutput enables span export to a file, or stdout for "-"
	// (TRACE_OUTPUT).
	TraceOutput string
}

// Load reads the environment. Malformed numbers fall back to defaults.
func Load() Config {
	return load(os.Getenv)
}

func load(getenv func(string) string) Config {
	cfg := Config{
		ExecutionTimeout: runner.DefaultTimeout,
		Port:             8420,
		SessionBaseDir:   os.TempDir(),
	}

	if v := getenv("EXECUTION_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ExecutionTimeout = time.Duration(n) * time.Second
		}
	}
	if v := getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := getenv("SESSION_BASE_DIR"); v != "" {
		cfg.SessionBaseDir = v
	}
	cfg.LanguagesFile = getenv("LANGUAGES_FILE")
	cfg.ExecutionLogDB = getenv("EXECUTION_LOG_DB")
	cfg.TraceOutput = getenv("TRACE_OUTPUT")

	return cfg
}
