package session

import (
	"strings"

	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

// Theme names accepted by the output layer.
const (
	ThemeDark  = "tdark"
	ThemeLight = "tlight"
)

// Settings are user preferences kept apart from the session so that a reset
// does not clear them.
type Settings struct {
	Theme string `json:"theme"`
}

// DefaultSettings returns the settings used before anything is saved.
func DefaultSettings() *Settings {
	return &Settings{Theme: ThemeDark}
}

// ParseTheme normalizes a theme name. "dark" and "light" are accepted as
// shorthands.
func ParseTheme(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ThemeDark, "dark":
		return ThemeDark, nil
	case ThemeLight, "light":
		return ThemeLight, nil
	}
	return "", hwerr.WithDetails(hwerr.ErrInvalidInput, map[string]string{
		"theme":   s,
		"allowed": ThemeDark + ", " + ThemeLight,
	})
}
