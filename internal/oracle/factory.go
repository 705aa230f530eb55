package oracle

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pkddi-mcp-server/internal/domain"
)

// Provider names accepted by New
const (
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// New builds the configured oracle. The returned close function releases the
// response cache connection, if any.
func New(config *domain.Config, logger *logrus.Logger) (domain.Oracle, func() error, error) {
	noClose := func() error { return nil }

	switch strings.ToLower(config.Oracle.Provider) {
	case ProviderNone, "":
		logger.Info("Oracle disabled; fallbacks will be used for unknown drugs and interactions")
		return NoopOracle{}, noClose, nil
	case ProviderGemini:
	default:
		return nil, noClose, fmt.Errorf("unknown oracle provider: %s", config.Oracle.Provider)
	}

	if config.Oracle.APIKey == "" {
		logger.Warn("Gemini API key not set; oracle disabled")
		return NoopOracle{}, noClose, nil
	}

	client := NewGeminiClient(GeminiConfig{
		BaseURL:     config.Oracle.BaseURL,
		APIKey:      config.Oracle.APIKey,
		Model:       config.Oracle.Model,
		Temperature: config.Oracle.Temperature,
		MaxTokens:   config.Oracle.MaxTokens,
	})

	var cache ResponseStore
	closeFn := noClose
	if config.Cache.RedisURL != "" {
		rc, err := NewResponseCache(config.Cache)
		if err != nil {
			logger.WithError(err).Warn("Oracle response cache unavailable; continuing without it")
		} else {
			cache = rc
			closeFn = rc.Close
		}
	}

	resilient := NewResilientOracle(client, ResilientConfig{
		Name:        "gemini",
		Model:       client.Model(),
		Timeout:     config.Oracle.Timeout,
		MaxAttempts: config.Oracle.MaxAttempts,
		RetryDelay:  config.Oracle.RetryDelay,
		RateLimit:   config.Oracle.RateLimit,
		CacheTTL:    config.Cache.DefaultTTL,
	}, cache, logger)

	logger.WithFields(logrus.Fields{
		"model":        client.Model(),
		"max_attempts": config.Oracle.MaxAttempts,
		"cache":        cache != nil,
	}).Info("Oracle initialized")

	return resilient, closeFn, nil
}
