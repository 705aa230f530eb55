package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/metrics"
)

// ResilientConfig controls retries, timeouts and throttling around an oracle
type ResilientConfig struct {
	Name        string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	RateLimit   float64
	CacheTTL    time.Duration
}

// ResilientOracle wraps an oracle with an optional response cache, a rate limiter,
// a circuit breaker, per-attempt timeouts and exponential backoff. Any failure that
// survives all attempts is reported as ErrOracleUnavailable.
type ResilientOracle struct {
	next    domain.Oracle
	cache   ResponseStore
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	config  ResilientConfig
	logger  *logrus.Logger
}

// NewResilientOracle wraps next. cache may be nil.
func NewResilientOracle(next domain.Oracle, config ResilientConfig, cache ResponseStore, logger *logrus.Logger) *ResilientOracle {
	if config.Name == "" {
		config.Name = "oracle"
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientOracle{
		next:    next,
		cache:   cache,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
		config:  config,
		logger:  logger,
	}
}

// Complete returns a completion for prompt, consulting the cache first
func (r *ResilientOracle) Complete(ctx context.Context, prompt string) (string, error) {
	key := CacheKey(r.config.Model, prompt)
	if r.cache != nil {
		if text, found, err := r.cache.Get(ctx, key); err != nil {
			r.logger.WithError(err).Warn("Oracle cache lookup failed")
		} else if found {
			metrics.RecordCacheLookup("oracle", true)
			metrics.OracleRequestsTotal.WithLabelValues(metrics.OutcomeCached).Inc()
			return text, nil
		} else {
			metrics.RecordCacheLookup("oracle", false)
		}
	}

	var lastErr error
	delay := r.config.RetryDelay

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", r.unavailable(attempt-1, ctx.Err())
			}
			delay *= 2
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return "", r.unavailable(attempt-1, err)
		}

		text, err := r.attempt(ctx, prompt)
		if err == nil {
			metrics.OracleRequestsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
			if r.cache != nil {
				if err := r.cache.Set(ctx, key, text, r.config.CacheTTL); err != nil {
					r.logger.WithError(err).Warn("Failed to cache oracle response")
				}
			}
			return text, nil
		}

		lastErr = err
		metrics.OracleRequestsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		r.logger.WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": r.config.MaxAttempts,
		}).WithError(err).Debug("Oracle attempt failed")

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", r.unavailable(attempt, err)
		}
	}

	return "", r.unavailable(r.config.MaxAttempts, lastErr)
}

func (r *ResilientOracle) attempt(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.OracleRequestDuration.Observe(time.Since(start).Seconds())
	}()

	result, err := r.breaker.Execute(func() (interface{}, error) {
		attemptCtx := ctx
		if r.config.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
			defer cancel()
		}
		return r.next.Complete(attemptCtx, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (r *ResilientOracle) unavailable(attempts int, cause error) error {
	metrics.OracleRequestsTotal.WithLabelValues(metrics.OutcomeUnavailable).Inc()
	return fmt.Errorf("%w after %d attempt(s): %v", domain.ErrOracleUnavailable, attempts, cause)
}

// State reports the circuit breaker state
func (r *ResilientOracle) State() gobreaker.State {
	return r.breaker.State()
}
