package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig identifies the MCP server and its optional operations listener
type ServerConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	HTTPAddr string `mapstructure:"http_addr"` // operations endpoints; empty disables
}

// OracleConfig represents the text-completion oracle configuration
type OracleConfig struct {
	Provider    string        `mapstructure:"provider"` // "gemini", "none"
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// SimulationConfig represents simulation engine settings
type SimulationConfig struct {
	MaxConcurrency        int     `mapstructure:"max_concurrency"`
	DefaultFrequencyHours float64 `mapstructure:"default_frequency_hours"`
	InteractionCacheSize  int     `mapstructure:"interaction_cache_size"`
}

// CacheConfig represents the optional shared oracle response cache
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// StoreConfig selects the persistence adapter for simulation runs
type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // "sqlite", "postgres", "none"
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"` // postgres only
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
