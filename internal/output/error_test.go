package output_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/output"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

var errPlain = errors.New("something went wrong")

func TestFormatError_Nil(t *testing.T) {
	t.Parallel()

	for _, format := range []output.Format{output.FormatJSON, output.FormatText} {
		var buf bytes.Buffer
		require.NoError(t, output.FormatError(&buf, nil, format))
		assert.Empty(t, buf.String())
	}
}

func TestFormatError_JSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		code        string
		exit        int
		recoverable bool
	}{
		{"plain", errPlain, "GENERAL_ERROR", hwerr.ExitGeneral, false},
		{"network", fmt.Errorf("%w: default utxo: timeout", hwerr.ErrNetworkError), "NETWORK_ERROR", hwerr.ExitNetwork, true},
		{"claimed", hwerr.WithDetails(hwerr.ErrAlreadyClaimed, map[string]string{"account": "0"}), "ALREADY_CLAIMED", hwerr.ExitPermission, false},
		{"rejected", hwerr.Wrap(hwerr.ErrDeviceRejected, "signing claim for account 1"), "DEVICE_REJECTED", hwerr.ExitDevice, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, output.FormatError(&buf, tt.err, output.FormatJSON))

			var got output.ErrorOutput
			require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
			assert.Equal(t, tt.code, got.Error.Code)
			assert.Equal(t, tt.exit, got.Error.ExitCode)
			assert.Equal(t, tt.recoverable, got.Error.Recoverable)
		})
	}
}

func TestFormatError_TextSortsDetails(t *testing.T) {
	t.Parallel()

	err := hwerr.WithSuggestion(
		hwerr.WithDetails(hwerr.ErrNoExplorerReachable, map[string]string{"default": "timeout", "alt1": "refused"}),
		"check your connection",
	)

	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, err, output.FormatText))
	text := buf.String()

	assert.True(t, strings.HasPrefix(text, "Error: no explorer endpoint is reachable\n"))
	assert.Less(t, strings.Index(text, "alt1: refused"), strings.Index(text, "default: timeout"))
	assert.Contains(t, text, "Suggestion: check your connection")
	assert.Contains(t, text, "This can be retried.")
}

func TestDescribe_Messages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain", errPlain, "something went wrong"},
		{"sentinel", hwerr.ErrNothingToClaim, "claimable rewards do not cover the transaction fee"},
		{"wrapped sentinel", hwerr.Wrap(hwerr.ErrDevice, "account 3"), "account 3: hardware wallet error"},
		{"wrapped plain", hwerr.Wrap(errPlain, "loading"), "loading: something went wrong"},
		{"fmt wrapped", fmt.Errorf("%w: deadline", hwerr.ErrNetworkError), "network communication failed: deadline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, output.Describe(tt.err).Message)
		})
	}
}

func TestFormatSuccess(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, output.FormatSuccess(&buf, "saved", output.FormatJSON))
	assert.JSONEq(t, `{"status":"success","message":"saved"}`, buf.String())

	buf.Reset()
	require.NoError(t, output.FormatSuccess(&buf, "saved", output.FormatText))
	assert.Equal(t, "saved\n", buf.String())
}
