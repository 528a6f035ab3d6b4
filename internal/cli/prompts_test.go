package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// withPrompts answers prompts with fixed values and restores the hooks on
// cleanup.
func withPrompts(t *testing.T, tty, answer bool, secrets ...string) {
	t.Helper()
	origConfirm, origSecret, origTTY := promptConfirmFn, promptSecretFn, stdinIsTerminal
	t.Cleanup(func() {
		promptConfirmFn, promptSecretFn, stdinIsTerminal = origConfirm, origSecret, origTTY
	})

	stdinIsTerminal = func() bool { return tty }
	promptConfirmFn = func(string) bool { return answer }
	promptSecretFn = func(string) ([]byte, error) {
		if len(secrets) == 0 {
			return nil, nil
		}
		s := secrets[0]
		secrets = secrets[1:]
		return []byte(s), nil
	}
}

func TestConfirm(t *testing.T) {
	t.Run("yes skips the prompt", func(t *testing.T) {
		withPrompts(t, false, false)
		require.NoError(t, confirm("go?", true))
	})

	t.Run("no terminal", func(t *testing.T) {
		withPrompts(t, false, true)
		err := confirm("go?", false)
		require.ErrorIs(t, err, hwerr.ErrInvalidInput)

		var he *hwerr.HWError
		require.ErrorAs(t, err, &he)
		assert.Contains(t, he.Suggestion, "--yes")
	})

	t.Run("declined", func(t *testing.T) {
		withPrompts(t, true, false)
		require.ErrorIs(t, confirm("go?", false), hwerr.ErrInvalidInput)
	})

	t.Run("accepted", func(t *testing.T) {
		withPrompts(t, true, true)
		require.NoError(t, confirm("go?", false))
	})
}

func TestNewPassphrase(t *testing.T) {
	tests := []struct {
		name    string
		tty     bool
		secrets []string
		want    string
		wantErr bool
	}{
		{"matching", true, []string{"correct horse", "correct horse"}, "correct horse", false},
		{"too short", true, []string{"short"}, "", true},
		{"mismatch", true, []string{"correct horse", "battery staple"}, "", true},
		{"no terminal", false, nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withPrompts(t, tt.tty, false, tt.secrets...)
			got, err := newPassphrase()
			if tt.wantErr {
				require.ErrorIs(t, err, hwerr.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
