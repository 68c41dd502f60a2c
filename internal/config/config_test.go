package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg := load(envOf(nil))
	assert.Equal(t, 30*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, 8420, cfg.Port)
	assert.Equal(t, os.TempDir(), cfg.SessionBaseDir)
	assert.Empty(t, cfg.LanguagesFile)
	assert.Empty(t, cfg.ExecutionLogDB)
	assert.Empty(t, cfg.TraceOutput)
}

func TestLoad_Overrides(t *testing.T) {
	cfg := load(envOf(map[string]string{
		"EXECUTION_TIMEOUT": "2",
		"PORT":              "9000",
		"SESSION_BASE_DIR":  "/var/sandbox",
		"LANGUAGES_FILE":    "/etc/languages.yaml",
		"EXECUTION_LOG_DB":  "/var/sandbox/log.db",
		"TRACE_OUTPUT":      "-",
	}))
	assert.Equal(t, 2*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/var/sandbox", cfg.SessionBaseDir)
	assert.Equal(t, "/etc/languages.yaml", cfg.LanguagesFile)
	assert.Equal(t, "/var/sandbox/log.db", cfg.ExecutionLogDB)
	assert.Equal(t, "-", cfg.TraceOutput)
}

func TestLoad_MalformedNumbers(t *testing.T) {
	cfg := load(envOf(map[string]string{"EXECUTION_TIMEOUT": "soon", "PORT": "http"}))
	assert.Equal(t, 30*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, 8420, cfg.Port)

	cfg = load(envOf(map[string]string{"EXECUTION_TIMEOUT": "-5"}))
	assert.Equal(t, 30*time.Second, cfg.ExecutionTimeout)
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("EXECUTION_TIMEOUT", "7")
	assert.Equal(t, 7*time.Second, Load().ExecutionTimeout)
}
