package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	m, err := NewManager("")
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "pkddi-mcp-server", cfg.Server.Name)
	assert.Equal(t, "gemini", cfg.Oracle.Provider)
	assert.Equal(t, "gemini-3-pro", cfg.Oracle.Model)
	assert.Equal(t, 60*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, 3, cfg.Oracle.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Oracle.RetryDelay)
	assert.Equal(t, 8192, cfg.Oracle.MaxTokens)
	assert.Equal(t, 4, cfg.Simulation.MaxConcurrency)
	assert.Equal(t, 24.0, cfg.Simulation.DefaultFrequencyHours)
	assert.Equal(t, 4096, cfg.Simulation.InteractionCacheSize)
	assert.Equal(t, 24*time.Hour, cfg.Cache.DefaultTTL)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.True(t, cfg.Store.AutoMigrate)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, m.ConfigFileUsed())
	assert.NoError(t, m.Validate())
}

func TestNewManager_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkddi.yaml")
	content := `
oracle:
  provider: none
  max_attempts: 5
simulation:
  max_concurrency: 8
store:
  driver: sqlite
  dsn: /tmp/pkddi/runs.db
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "none", cfg.Oracle.Provider)
	assert.Equal(t, 5, cfg.Oracle.MaxAttempts)
	assert.Equal(t, 8, cfg.Simulation.MaxConcurrency)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, path, m.ConfigFileUsed())
	assert.NoError(t, m.Validate())
}

func TestNewManager_MissingExplicitFile(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewManager_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PKDDI_ORACLE_MODEL", "gemini-test")
	t.Setenv("PKDDI_SIMULATION_MAX_CONCURRENCY", "2")
	t.Setenv("GEMINI_API_KEY", "from-provider-env")

	m, err := NewManager("")
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "gemini-test", cfg.Oracle.Model)
	assert.Equal(t, 2, cfg.Simulation.MaxConcurrency)
	assert.Equal(t, "from-provider-env", cfg.Oracle.APIKey)

	t.Run("Prefixed_Key_Wins", func(t *testing.T) {
		t.Setenv("PKDDI_ORACLE_API_KEY", "prefixed")
		require.NoError(t, m.Reload())
		assert.Equal(t, "prefixed", m.GetConfig().Oracle.APIKey)
	})
}

func TestManager_Validate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"Unknown_Provider", map[string]string{"PKDDI_ORACLE_PROVIDER": "openai"}, "invalid oracle provider"},
		{"Zero_Attempts", map[string]string{"PKDDI_ORACLE_MAX_ATTEMPTS": "0"}, "max_attempts"},
		{"Zero_Concurrency", map[string]string{"PKDDI_SIMULATION_MAX_CONCURRENCY": "0"}, "max_concurrency"},
		{"Sqlite_Without_DSN", map[string]string{"PKDDI_STORE_DRIVER": "sqlite"}, "store dsn is required"},
		{"Unknown_Store", map[string]string{"PKDDI_STORE_DRIVER": "mongodb"}, "invalid store driver"},
		{"Bad_Log_Level", map[string]string{"PKDDI_LOGGING_LEVEL": "verbose"}, "invalid log level"},
		{"Bad_Log_Format", map[string]string{"PKDDI_LOGGING_FORMAT": "xml"}, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			m, err := NewManager("")
			require.NoError(t, err)
			assert.ErrorContains(t, m.Validate(), tt.wantErr)
		})
	}
}
