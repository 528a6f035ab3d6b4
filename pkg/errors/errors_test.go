package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

var (
	errInner = errors.New("inner")
	errPlain = errors.New("plain error")
)

func TestExitCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, hwerr.ExitSuccess},
		{"general error", hwerr.ErrGeneral, hwerr.ExitGeneral},
		{"input error", hwerr.ErrInvalidInput, hwerr.ExitInput},
		{"not found error", hwerr.ErrNotFound, hwerr.ExitNotFound},
		{"network error", hwerr.ErrNetworkError, hwerr.ExitNetwork},
		{"no explorer", hwerr.ErrNoExplorerReachable, hwerr.ExitNetwork},
		{"device rejected", hwerr.ErrDeviceRejected, hwerr.ExitDevice},
		{"already claimed", hwerr.ErrAlreadyClaimed, hwerr.ExitPermission},
		{"plain error", errPlain, hwerr.ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, hwerr.ExitCode(tt.err))
		})
	}
}

func TestWrapPreservesIdentity(t *testing.T) {
	t.Parallel()

	sentinels := []*hwerr.HWError{
		hwerr.ErrNetworkError,
		hwerr.ErrDevice,
		hwerr.ErrDiscoveryPartial,
		hwerr.ErrInvariantViolation,
		hwerr.ErrAlreadyClaimed,
		hwerr.ErrClaimInProgress,
	}

	for _, sentinel := range sentinels {
		t.Run(sentinel.Code, func(t *testing.T) {
			t.Parallel()
			wrapped := hwerr.Wrap(sentinel, "account %d", 3)
			require.ErrorIs(t, wrapped, sentinel)
			assert.Equal(t, sentinel.Code, hwerr.Code(wrapped))
			assert.Contains(t, wrapped.Error(), "account 3")
		})
	}
}

func TestFmtWrappedSentinel(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("%w: %w", hwerr.ErrNetworkError, errInner)
	require.ErrorIs(t, err, hwerr.ErrNetworkError)
	require.ErrorIs(t, err, errInner)
	assert.Equal(t, "NETWORK_ERROR", hwerr.Code(err))
}

func TestWithDetailsAndSuggestion(t *testing.T) {
	t.Parallel()
	details := map[string]string{"account": "1"}

	err := hwerr.WithDetails(hwerr.ErrAlreadyClaimed, details)
	err = hwerr.WithSuggestion(err, "nothing left to do")

	var he *hwerr.HWError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, details, he.Details)
	assert.Equal(t, "nothing left to do", he.Suggestion)
	assert.Equal(t, hwerr.ExitPermission, he.ExitCode)
}

func TestHWError_Error(t *testing.T) {
	t.Parallel()

	t.Run("message only", func(t *testing.T) {
		t.Parallel()
		err := &hwerr.HWError{Code: "TEST", Message: "something failed"}
		assert.Equal(t, "something failed", err.Error())
	})

	t.Run("with details sorted", func(t *testing.T) {
		t.Parallel()
		err := &hwerr.HWError{
			Code:    "TEST",
			Message: "failed",
			Details: map[string]string{"beta": "2", "alpha": "1"},
		}
		assert.Equal(t, "failed (alpha: 1) (beta: 2)", err.Error())
	})

	t.Run("with details and cause", func(t *testing.T) {
		t.Parallel()
		err := &hwerr.HWError{
			Code:    "TEST",
			Message: "outer",
			Details: map[string]string{"key": "val"},
			Cause:   errInner,
		}
		assert.Equal(t, "outer (key: val): inner", err.Error())
	})
}

func TestHWError_Is(t *testing.T) {
	t.Parallel()

	a := &hwerr.HWError{Code: "SAME_CODE", Message: "a"}
	b := &hwerr.HWError{Code: "SAME_CODE", Message: "b"}
	c := &hwerr.HWError{Code: "OTHER", Message: "c"}

	assert.True(t, a.Is(b))
	assert.False(t, a.Is(c))
	assert.False(t, a.Is(errPlain))
}

func TestWrap_edgeCases(t *testing.T) {
	t.Parallel()

	t.Run("nil input", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, hwerr.Wrap(nil, "context"))
		assert.NoError(t, hwerr.WithDetails(nil, nil))
		assert.NoError(t, hwerr.WithSuggestion(nil, "x"))
	})

	t.Run("plain error", func(t *testing.T) {
		t.Parallel()
		wrapped := hwerr.Wrap(errPlain, "context")
		var he *hwerr.HWError
		require.ErrorAs(t, wrapped, &he)
		assert.Equal(t, "GENERAL_ERROR", he.Code)
		assert.Equal(t, "context", he.Message)
		assert.Equal(t, errPlain, he.Cause)
	})
}

func TestIsRecoverable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", fmt.Errorf("%w: timeout", hwerr.ErrNetworkError), true},
		{"no explorer", hwerr.ErrNoExplorerReachable, true},
		{"device rejected", hwerr.Wrap(hwerr.ErrDeviceRejected, "sign"), true},
		{"device reset", hwerr.ErrDeviceReset, true},
		{"in progress", hwerr.ErrClaimInProgress, true},
		{"already claimed", hwerr.ErrAlreadyClaimed, false},
		{"invariant", hwerr.ErrInvariantViolation, false},
		{"plain", errPlain, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, hwerr.IsRecoverable(tt.err))
		})
	}
}
