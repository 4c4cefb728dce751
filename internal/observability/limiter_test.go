package observability

import (
	"context"
	"testing"
	"time"

	"cubegate/internal/models"
	"cubegate/internal/ratelimit"
	"cubegate/internal/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestProvider(t *testing.T) *Provider {
	t.Helper()
	metrics := models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090}
	obs := models.ObservabilityConfig{
		ServiceName: "test",
		Tracing: models.TracingConfig{
			Enabled:  false,
			Exporter: "stdout",
		},
	}
	provider, err := Setup(metrics, obs, version.Info{})
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	return provider
}

func setupMemoryLimiter(t *testing.T) ratelimit.Limiter {
	t.Helper()
	cfg := ratelimit.DefaultConfig()
	cfg.Whitelist = nil
	cfg.CleanupInterval = time.Hour
	l := ratelimit.New(cfg)
	t.Cleanup(l.Close)
	return l
}

func TestNewInstrumentedLimiter(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryLimiter(t)

	instrumented, err := NewInstrumentedLimiter(inner)
	require.NoError(t, err)
	assert.NotNil(t, instrumented)
}

func TestInstrumentedLimiter_Check(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryLimiter(t)

	instrumented, err := NewInstrumentedLimiter(inner)
	require.NoError(t, err)

	ctx := context.Background()

	result := instrumented.Check(ctx, "192.0.2.1", "")
	assert.True(t, result.Allowed)
	assert.Equal(t, 100, result.Limit)
	assert.Equal(t, 99, result.Remaining)
}

func TestInstrumentedLimiter_BlockAndReset(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryLimiter(t)

	instrumented, err := NewInstrumentedLimiter(inner)
	require.NoError(t, err)

	ctx := context.Background()

	instrumented.Block(ctx, "192.0.2.2", time.Minute)
	assert.True(t, instrumented.IsBlocked(ctx, "192.0.2.2"))

	result := instrumented.Check(ctx, "192.0.2.2", "")
	assert.False(t, result.Allowed)

	instrumented.Reset(ctx, "192.0.2.2")
	assert.False(t, instrumented.IsBlocked(ctx, "192.0.2.2"))
}

func TestInstrumentedLimiter_Status(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryLimiter(t)

	instrumented, err := NewInstrumentedLimiter(inner)
	require.NoError(t, err)

	ctx := context.Background()

	instrumented.Consume(ctx, "192.0.2.3", "")
	instrumented.Consume(ctx, "192.0.2.3", "")

	status := instrumented.Status(ctx, "192.0.2.3", "")
	assert.Equal(t, 2, status.RequestsInWindow)
	assert.Equal(t, 98, status.Remaining)
	assert.False(t, status.Blocked)
}

func TestInstrumentedLimiter_ConfigPassthrough(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryLimiter(t)

	instrumented, err := NewInstrumentedLimiter(inner)
	require.NoError(t, err)

	maxRequests := 5
	instrumented.SetConfig(ratelimit.ConfigPatch{MaxRequests: &maxRequests})
	assert.Equal(t, 5, instrumented.Config().MaxRequests)
}

func TestInstrumentedLimiter_ImplementsInterface(t *testing.T) {
	_ = setupTestProvider(t)
	inner := setupMemoryLimiter(t)

	instrumented, err := NewInstrumentedLimiter(inner)
	require.NoError(t, err)

	var _ ratelimit.Limiter = instrumented
}
