package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/chain"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(10, 10)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow("default"), "request %d should fit the burst", i)
	}
	assert.False(t, rl.Allow("default"), "burst should be exhausted")
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(100, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, rl.Wait(ctx, "default"))

	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "default"))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestRateLimiter_WaitCanceled(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(0.001, 1)
	require.True(t, rl.Allow("alt2"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, rl.Wait(ctx, "alt2"))
}

func TestRateLimiter_SeparateEndpoints(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(10, 2)

	assert.True(t, rl.Allow("default"))
	assert.True(t, rl.Allow("default"))
	assert.False(t, rl.Allow("default"))

	assert.True(t, rl.Allow("alt1"))
	assert.True(t, rl.Allow("alt1"))
}

func TestRateLimiter_Unlimited(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(0, 0)
	for i := 0; i < 1000; i++ {
		require.True(t, rl.Allow("default"))
	}
}
