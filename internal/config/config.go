// Package config loads the server configuration from an optional pkddi.yaml file,
// PKDDI_-prefixed environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pkddi-mcp-server/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. PKDDI_ORACLE_MODEL
const EnvPrefix = "PKDDI"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

var _ domain.ConfigManager = (*Manager)(nil)

// NewManager creates a new configuration manager. An empty configFile searches
// the working directory, ./config and /etc/pkddi-mcp-server for pkddi.yaml.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("pkddi")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pkddi-mcp-server/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// the bare provider variable is honoured as well
	if err := v.BindEnv("oracle.api_key", EnvPrefix+"_ORACLE_API_KEY", "GEMINI_API_KEY"); err != nil {
		return fmt.Errorf("error binding oracle api key: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if m.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "pkddi-mcp-server")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.http_addr", "")

	v.SetDefault("oracle.provider", "gemini")
	v.SetDefault("oracle.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", "gemini-3-pro")
	v.SetDefault("oracle.timeout", "60s")
	v.SetDefault("oracle.max_attempts", 3)
	v.SetDefault("oracle.retry_delay", "1s")
	v.SetDefault("oracle.rate_limit", 5.0)
	v.SetDefault("oracle.temperature", 0.7)
	v.SetDefault("oracle.max_tokens", 8192)

	v.SetDefault("simulation.max_concurrency", 4)
	v.SetDefault("simulation.default_frequency_hours", 24.0)
	v.SetDefault("simulation.interaction_cache_size", 4096)

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	v.SetDefault("store.driver", "none")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.auto_migrate", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// ConfigFileUsed returns the path of the loaded config file, or "" when running on defaults
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	switch strings.ToLower(config.Oracle.Provider) {
	case "gemini", "none", "":
	default:
		return fmt.Errorf("invalid oracle provider: %s", config.Oracle.Provider)
	}
	if config.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle timeout must be positive: %s", config.Oracle.Timeout)
	}
	if config.Oracle.MaxAttempts < 1 {
		return fmt.Errorf("oracle max_attempts must be at least 1: %d", config.Oracle.MaxAttempts)
	}
	if config.Oracle.RetryDelay < 0 {
		return fmt.Errorf("oracle retry_delay must not be negative: %s", config.Oracle.RetryDelay)
	}
	if config.Oracle.RateLimit < 0 {
		return fmt.Errorf("oracle rate_limit must not be negative: %g", config.Oracle.RateLimit)
	}

	if config.Simulation.MaxConcurrency < 1 {
		return fmt.Errorf("simulation max_concurrency must be at least 1: %d", config.Simulation.MaxConcurrency)
	}
	if config.Simulation.DefaultFrequencyHours <= 0 {
		return fmt.Errorf("simulation default_frequency_hours must be positive: %g", config.Simulation.DefaultFrequencyHours)
	}
	if config.Simulation.InteractionCacheSize < 1 {
		return fmt.Errorf("simulation interaction_cache_size must be at least 1: %d", config.Simulation.InteractionCacheSize)
	}

	if config.Cache.RedisURL != "" && config.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache default_ttl must be positive when redis_url is set")
	}

	switch strings.ToLower(config.Store.Driver) {
	case "none", "":
	case "sqlite", "postgres":
		if config.Store.DSN == "" {
			return fmt.Errorf("store dsn is required for driver %s", config.Store.Driver)
		}
	default:
		return fmt.Errorf("invalid store driver: %s", config.Store.Driver)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "warning": true,
		"error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}
