package oracle

import (
	"context"

	"github.com/pkddi-mcp-server/internal/domain"
)

// NoopOracle is used when no provider is configured. Every call fails, so callers
// always take their documented fallback.
type NoopOracle struct{}

// Complete always returns ErrOracleUnavailable
func (NoopOracle) Complete(ctx context.Context, prompt string) (string, error) {
	return "", domain.ErrOracleUnavailable
}
