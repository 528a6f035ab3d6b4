package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Sentinel errors understood by the retry loop.
var (
	ErrRetryable = &hwerr.HWError{
		Code:     "RETRYABLE_ERROR",
		Message:  "retryable error",
		ExitCode: hwerr.ExitNetwork,
	}

	ErrTimeout = &hwerr.HWError{
		Code:     "TIMEOUT",
		Message:  "operation timed out",
		ExitCode: hwerr.ExitNetwork,
	}

	ErrRateLimited = &hwerr.HWError{
		Code:     "RATE_LIMITED",
		Message:  "rate limited",
		ExitCode: hwerr.ExitNetwork,
	}
)

// RateLimitError carries the server's Retry-After hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Endpoint   string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Endpoint, e.RetryAfter)
	}
	return e.Endpoint + ": rate limited"
}

// Is makes a RateLimitError match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == error(ErrRateLimited)
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (including initial)
	BaseDelay   time.Duration // Initial delay between retries
	MaxDelay    time.Duration // Maximum delay between retries

	// OnRetry, when set, is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the default retry configuration:
// 3 attempts with delays of roughly 500ms and 1s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// Retry executes the operation with exponential backoff using DefaultRetryConfig.
func Retry[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	return RetryWithConfig(ctx, DefaultRetryConfig(), operation)
}

// RetryWithConfig executes the operation until it succeeds, returns a
// non-retryable error, or runs out of attempts.
func RetryWithConfig[T any](ctx context.Context, cfg RetryConfig, operation func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		result, err = operation()
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return result, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := backoff(attempt, cfg.BaseDelay, cfg.MaxDelay)
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	if attempts == 1 {
		return result, err
	}
	return result, fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}

// backoff doubles the base delay per attempt, caps it, and spreads it over
// [delay/2, delay) so parallel address queries do not retry in lockstep.
func backoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay << attempt
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half) //nolint:gosec // G404: jitter does not need crypto randomness
}

// IsRetryable reports whether the error should trigger another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRetryable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ParseRetryAfter parses a Retry-After header given in seconds.
// Returns 0 if the header is missing or malformed.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// WrapRetryable marks an error as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}
