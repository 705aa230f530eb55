package setup

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), binaryName)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0755))
	return path
}

func TestLoadDesktopConfig_Missing(t *testing.T) {
	config, err := LoadDesktopConfig(filepath.Join(t.TempDir(), "absent.json"))

	require.NoError(t, err)
	assert.NotNil(t, config.MCPServers)
	assert.Empty(t, config.MCPServers)
}

func TestLoadDesktopConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadDesktopConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestRegister(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "client", "config.json")
	binary := fakeBinary(t)

	t.Run("Preserves_Other_Servers", func(t *testing.T) {
		require.NoError(t, SaveDesktopConfig(configPath, &DesktopConfig{
			MCPServers: map[string]ServerEntry{"other": {Command: "/usr/bin/other"}},
		}))

		dataDir := filepath.Join(t.TempDir(), "data")
		entry, err := Register(configPath, Options{
			BinaryPath: binary,
			ConfigFile: "/etc/pkddi/pkddi.yaml",
			DataDir:    dataDir,
			APIKey:     "secret",
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"serve", "--config", "/etc/pkddi/pkddi.yaml"}, entry.Args)
		assert.Equal(t, "sqlite", entry.Env["PKDDI_STORE_DRIVER"])
		assert.Equal(t, filepath.Join(dataDir, "runs.db"), entry.Env["PKDDI_STORE_DSN"])
		assert.Equal(t, "secret", entry.Env["PKDDI_ORACLE_API_KEY"])
		assert.DirExists(t, dataDir)

		config, err := LoadDesktopConfig(configPath)
		require.NoError(t, err)
		assert.Contains(t, config.MCPServers, "other")
		assert.Contains(t, config.MCPServers, ServerName)
	})

	t.Run("Status_Registered", func(t *testing.T) {
		status, err := GetStatus(configPath)

		require.NoError(t, err)
		assert.True(t, status.Registered)
		assert.Equal(t, binary, status.Command)
		assert.Empty(t, status.Issues)
	})
}

func TestGetStatus(t *testing.T) {
	t.Run("Not_Registered", func(t *testing.T) {
		status, err := GetStatus(filepath.Join(t.TempDir(), "config.json"))

		require.NoError(t, err)
		assert.False(t, status.Registered)
		assert.Contains(t, status.Issues, "server is not registered")
	})

	t.Run("Missing_Binary", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		_, err := Register(configPath, Options{BinaryPath: "/nonexistent/pkddi-server"})
		require.NoError(t, err)

		status, err := GetStatus(configPath)
		require.NoError(t, err)
		assert.True(t, status.Registered)
		require.Len(t, status.Issues, 1)
		assert.Contains(t, status.Issues[0], "not found")
	})
}

func TestDesktopConfigPath_XDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME applies on linux only")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := DesktopConfigPath()

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Claude", "claude_desktop_config.json"), path)
}
