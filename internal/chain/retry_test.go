package chain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/chain"
)

var (
	errNonRetryable = errors.New("non-retryable error")
	errSomeError    = errors.New("some error")
)

func fastRetry(attempts int) chain.RetryConfig {
	return chain.RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetry_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()
	attempts := 0
	result, err := chain.RetryWithConfig(context.Background(), fastRetry(3), func() (string, error) {
		attempts++
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 1, attempts)
}

func TestRetry_SuccessAfterRetry(t *testing.T) {
	t.Parallel()
	attempts := 0
	result, err := chain.RetryWithConfig(context.Background(), fastRetry(3), func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, chain.WrapRetryable(errSomeError)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableError(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := chain.RetryWithConfig(context.Background(), fastRetry(3), func() (string, error) {
		attempts++
		return "", errNonRetryable
	})

	require.ErrorIs(t, err, errNonRetryable)
	assert.Equal(t, 1, attempts)
}

func TestRetry_MaxAttempts(t *testing.T) {
	t.Parallel()
	attempts := 0
	var retried []int
	cfg := fastRetry(4)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) {
		retried = append(retried, attempt)
	}

	_, err := chain.RetryWithConfig(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", chain.ErrTimeout
	})

	require.ErrorIs(t, err, chain.ErrTimeout)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []int{1, 2, 3}, retried)
}

func TestRetry_SingleAttemptReturnsRawError(t *testing.T) {
	t.Parallel()
	_, err := chain.RetryWithConfig(context.Background(), fastRetry(0), func() (string, error) {
		return "", chain.ErrRetryable
	})
	require.ErrorIs(t, err, chain.ErrRetryable)
	assert.NotContains(t, err.Error(), "attempts")
}

func TestRetry_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	cfg := chain.RetryConfig{MaxAttempts: 10, BaseDelay: 20 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := chain.RetryWithConfig(ctx, cfg, func() (string, error) {
		attempts++
		return "", chain.ErrRetryable
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, attempts, 10)
}

func TestRetry_HonorsRetryAfter(t *testing.T) {
	t.Parallel()
	var delays []time.Duration
	cfg := fastRetry(2)
	cfg.OnRetry = func(_ int, _ error, d time.Duration) { delays = append(delays, d) }

	_, err := chain.RetryWithConfig(context.Background(), cfg, func() (string, error) {
		return "", &chain.RateLimitError{Endpoint: "alt1", RetryAfter: 20 * time.Millisecond}
	})

	require.ErrorIs(t, err, chain.ErrRateLimited)
	require.Len(t, delays, 1)
	assert.Equal(t, 20*time.Millisecond, delays[0])
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.True(t, chain.IsRetryable(chain.ErrRetryable))
	assert.True(t, chain.IsRetryable(chain.ErrTimeout))
	assert.True(t, chain.IsRetryable(chain.ErrRateLimited))
	assert.True(t, chain.IsRetryable(&chain.RateLimitError{Endpoint: "default"}))
	assert.True(t, chain.IsRetryable(context.DeadlineExceeded))
	assert.True(t, chain.IsRetryable(fmt.Errorf("wrapped: %w", chain.WrapRetryable(errSomeError))))

	assert.False(t, chain.IsRetryable(errSomeError))
	assert.False(t, chain.IsRetryable(nil))
	assert.NoError(t, chain.WrapRetryable(nil))
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		header   string
		expected time.Duration
	}{
		{"5", 5 * time.Second},
		{"120", 120 * time.Second},
		{"0", 0},
		{"-3", 0},
		{"", 0},
		{"invalid", 0},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, chain.ParseRetryAfter(tt.header))
		})
	}
}
