package oracle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pkddi-mcp-server/internal/domain"
)

// scriptedOracle fails the first failures calls, then answers with response
type scriptedOracle struct {
	failures int32
	response string
	calls    atomic.Int32
}

func (o *scriptedOracle) Complete(ctx context.Context, prompt string) (string, error) {
	n := o.calls.Add(1)
	if n <= o.failures {
		return "", errors.New("upstream 503")
	}
	return o.response, nil
}

// blockingOracle waits for its context to end
type blockingOracle struct{}

func (blockingOracle) Complete(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type mockResponseStore struct {
	mock.Mock
}

func (m *mockResponseStore) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockResponseStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func testResilientConfig() ResilientConfig {
	return ResilientConfig{
		Name:        "test",
		Model:       "test-model",
		Timeout:     time.Second,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}
}

func TestResilientOracle_Retries(t *testing.T) {
	t.Run("Succeeds_After_Transient_Failures", func(t *testing.T) {
		next := &scriptedOracle{failures: 2, response: "ok"}
		r := NewResilientOracle(next, testResilientConfig(), nil, testLogger())

		text, err := r.Complete(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
		assert.Equal(t, int32(3), next.calls.Load())
	})

	t.Run("Exhaustion_Is_Unavailable", func(t *testing.T) {
		next := &scriptedOracle{failures: 100}
		r := NewResilientOracle(next, testResilientConfig(), nil, testLogger())

		_, err := r.Complete(context.Background(), "prompt")
		assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
		assert.Equal(t, int32(3), next.calls.Load())
	})

	t.Run("Open_Breaker_Short_Circuits", func(t *testing.T) {
		next := &scriptedOracle{failures: 100}
		r := NewResilientOracle(next, testResilientConfig(), nil, testLogger())

		_, err := r.Complete(context.Background(), "prompt")
		require.ErrorIs(t, err, domain.ErrOracleUnavailable)
		assert.Equal(t, gobreaker.StateOpen, r.State())

		_, err = r.Complete(context.Background(), "prompt")
		assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
		assert.Equal(t, int32(3), next.calls.Load())
	})

	t.Run("Per_Attempt_Timeout", func(t *testing.T) {
		config := testResilientConfig()
		config.Timeout = 10 * time.Millisecond
		config.MaxAttempts = 2
		r := NewResilientOracle(blockingOracle{}, config, nil, testLogger())

		_, err := r.Complete(context.Background(), "prompt")
		assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	})

	t.Run("Cancelled_Context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		next := &scriptedOracle{response: "ok"}
		r := NewResilientOracle(next, testResilientConfig(), nil, testLogger())

		_, err := r.Complete(ctx, "prompt")
		assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
		assert.Equal(t, int32(0), next.calls.Load())
	})
}

func TestResilientOracle_Cache(t *testing.T) {
	key := CacheKey("test-model", "prompt")

	t.Run("Hit_Skips_Oracle", func(t *testing.T) {
		store := new(mockResponseStore)
		store.On("Get", mock.Anything, key).Return("cached", true, nil)

		next := &scriptedOracle{response: "fresh"}
		r := NewResilientOracle(next, testResilientConfig(), store, testLogger())

		text, err := r.Complete(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "cached", text)
		assert.Equal(t, int32(0), next.calls.Load())
		store.AssertExpectations(t)
	})

	t.Run("Miss_Stores_Response", func(t *testing.T) {
		config := testResilientConfig()
		config.CacheTTL = time.Hour

		store := new(mockResponseStore)
		store.On("Get", mock.Anything, key).Return("", false, nil)
		store.On("Set", mock.Anything, key, "fresh", time.Hour).Return(nil)

		r := NewResilientOracle(&scriptedOracle{response: "fresh"}, config, store, testLogger())

		text, err := r.Complete(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "fresh", text)
		store.AssertExpectations(t)
	})

	t.Run("Cache_Error_Falls_Through", func(t *testing.T) {
		store := new(mockResponseStore)
		store.On("Get", mock.Anything, key).Return("", false, errors.New("connection refused"))
		store.On("Set", mock.Anything, key, "fresh", time.Duration(0)).Return(errors.New("connection refused"))

		r := NewResilientOracle(&scriptedOracle{response: "fresh"}, testResilientConfig(), store, testLogger())

		text, err := r.Complete(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, "fresh", text)
	})
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("m", "p"), CacheKey("m", "p"))
	assert.NotEqual(t, CacheKey("m", "p"), CacheKey("m2", "p"))
	assert.Contains(t, CacheKey("m", "p"), cacheKeyPrefix)
}

func TestNoopOracle(t *testing.T) {
	_, err := NoopOracle{}.Complete(context.Background(), "anything")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestNew(t *testing.T) {
	t.Run("None_Provider", func(t *testing.T) {
		o, closeFn, err := New(&domain.Config{Oracle: domain.OracleConfig{Provider: "none"}}, testLogger())
		require.NoError(t, err)
		assert.IsType(t, NoopOracle{}, o)
		assert.NoError(t, closeFn())
	})

	t.Run("Gemini_Without_Key", func(t *testing.T) {
		o, _, err := New(&domain.Config{Oracle: domain.OracleConfig{Provider: "gemini"}}, testLogger())
		require.NoError(t, err)
		assert.IsType(t, NoopOracle{}, o)
	})

	t.Run("Gemini", func(t *testing.T) {
		o, _, err := New(&domain.Config{Oracle: domain.OracleConfig{Provider: "Gemini", APIKey: "k", MaxAttempts: 2}}, testLogger())
		require.NoError(t, err)
		assert.IsType(t, &ResilientOracle{}, o)
	})

	t.Run("Unknown_Provider", func(t *testing.T) {
		_, _, err := New(&domain.Config{Oracle: domain.OracleConfig{Provider: "openai"}}, testLogger())
		assert.Error(t, err)
	})
}
