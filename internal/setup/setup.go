// Package setup registers the server with desktop MCP clients and reports the
// registration status.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerName is the key of the server entry in the client configuration
const ServerName = "pkddi-simulator"

const binaryName = "pkddi-server"

// DesktopConfig represents the desktop client configuration file structure.
type DesktopConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
}

// ServerEntry represents a single MCP server launch configuration.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options controls how the server entry is written.
type Options struct {
	BinaryPath string // Path to the server binary; located automatically when empty
	ConfigFile string // Optional pkddi.yaml passed with --config
	DataDir    string // Enables the SQLite run store under this directory
	APIKey     string // Optional Gemini API key placed in the entry's environment
}

// Status represents the current registration status.
type Status struct {
	ConfigPath string   `json:"config_path"`
	Registered bool     `json:"registered"`
	Command    string   `json:"command,omitempty"`
	StoreDSN   string   `json:"store_dsn,omitempty"`
	Issues     []string `json:"issues"`
}

// DesktopConfigPath returns the path to the desktop client's config file.
func DesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
			break
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config", "Claude")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// DefaultDataDir returns the default directory for the run store.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pkddi-mcp")
}

// LoadDesktopConfig loads the client configuration. A missing file yields an empty config.
func LoadDesktopConfig(configPath string) (*DesktopConfig, error) {
	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return &DesktopConfig{MCPServers: make(map[string]ServerEntry)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config DesktopConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.MCPServers == nil {
		config.MCPServers = make(map[string]ServerEntry)
	}
	return &config, nil
}

// SaveDesktopConfig writes the client configuration, creating its directory.
func SaveDesktopConfig(configPath string, config *DesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or replaces the server entry in the client configuration at configPath.
// Other servers in the file are preserved.
func Register(configPath string, opts Options) (*ServerEntry, error) {
	config, err := LoadDesktopConfig(configPath)
	if err != nil {
		return nil, err
	}

	binaryPath := opts.BinaryPath
	if binaryPath == "" {
		binaryPath, err = findBinary()
		if err != nil {
			return nil, fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := ServerEntry{
		Command: binaryPath,
		Args:    []string{"serve"},
		Env:     make(map[string]string),
	}
	if opts.ConfigFile != "" {
		entry.Args = append(entry.Args, "--config", opts.ConfigFile)
	}
	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		entry.Env["PKDDI_STORE_DRIVER"] = "sqlite"
		entry.Env["PKDDI_STORE_DSN"] = filepath.Join(opts.DataDir, "runs.db")
	}
	if opts.APIKey != "" {
		entry.Env["PKDDI_ORACLE_API_KEY"] = opts.APIKey
	}

	config.MCPServers[ServerName] = entry
	if err := SaveDesktopConfig(configPath, config); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetStatus reports whether the server is registered in the configuration at configPath.
func GetStatus(configPath string) (*Status, error) {
	status := &Status{ConfigPath: configPath, Issues: []string{}}

	config, err := LoadDesktopConfig(configPath)
	if err != nil {
		return nil, err
	}

	entry, ok := config.MCPServers[ServerName]
	if !ok {
		status.Issues = append(status.Issues, "server is not registered")
		return status, nil
	}

	status.Registered = true
	status.Command = entry.Command
	status.StoreDSN = entry.Env["PKDDI_STORE_DSN"]

	info, err := os.Stat(entry.Command)
	switch {
	case err != nil:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
	case runtime.GOOS != "windows" && info.Mode()&0111 == 0:
		status.Issues = append(status.Issues, fmt.Sprintf("server binary is not executable: %s", entry.Command))
	}

	return status, nil
}

// findBinary locates the server binary on PATH, falling back to the running executable.
func findBinary() (string, error) {
	if path, err := exec.LookPath(binaryName); err == nil {
		return filepath.Abs(path)
	}
	return os.Executable()
}
