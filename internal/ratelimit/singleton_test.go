package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_SameInstance(t *testing.T) {
	t.Cleanup(Destroy)

	first := Default()
	second := Default()
	assert.Same(t, first, second)
}

func TestDestroy_DiscardsState(t *testing.T) {
	t.Cleanup(Destroy)

	ctx := context.Background()
	limiter := Default()
	limiter.Block(ctx, "ip1", time.Minute)
	require.True(t, limiter.IsBlocked(ctx, "ip1"))

	Destroy()

	fresh := Default()
	assert.NotSame(t, limiter, fresh)
	assert.False(t, fresh.IsBlocked(ctx, "ip1"))
}

func TestDestroy_WithoutDefault(t *testing.T) {
	// Destroy before any Default call must not panic.
	Destroy()
}
