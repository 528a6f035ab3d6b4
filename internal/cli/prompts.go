package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // swapped by tests
var (
	promptConfirmFn = promptConfirm
	promptSecretFn  = promptSecret
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) } //nolint:gosec // G115: fd fits in int
)

// promptConfirm asks a yes/no question on stderr. Anything but y/yes is no.
func promptConfirm(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// promptSecret reads a passphrase with hidden input.
func promptSecret(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // G115: fd fits in int
	outln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return secret, nil
}

// confirm returns nil when the user agreed, skipping the prompt when yes
// is set. Without a terminal the user must pass --yes.
func confirm(question string, yes bool) error {
	if yes {
		return nil
	}
	if !stdinIsTerminal() {
		return hwerr.WithSuggestion(
			hwerr.Wrap(hwerr.ErrInvalidInput, "confirmation required"),
			"run in a terminal or pass --yes",
		)
	}
	if !promptConfirmFn(question) {
		return hwerr.Wrap(hwerr.ErrInvalidInput, "cancelled")
	}
	return nil
}

// newPassphrase prompts for an export passphrase twice.
func newPassphrase() (string, error) {
	if !stdinIsTerminal() {
		return "", hwerr.WithSuggestion(
			hwerr.Wrap(hwerr.ErrInvalidInput, "passphrase required"),
			"run in a terminal or pass --recipient with an age public key",
		)
	}
	first, err := promptSecretFn("Export passphrase: ")
	if err != nil {
		return "", err
	}
	if len(first) < 8 {
		return "", hwerr.WithSuggestion(hwerr.ErrInvalidInput, "passphrase must be at least 8 characters")
	}
	second, err := promptSecretFn("Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", hwerr.WithSuggestion(hwerr.ErrInvalidInput, "passphrases do not match")
	}
	return string(first), nil
}
