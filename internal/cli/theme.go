package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/hwclaim/internal/output"
	"github.com/mrz1836/hwclaim/internal/session"
)

// themeCmd shows or changes the color theme.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var themeCmd = &cobra.Command{
	Use:   "theme [dark|light]",
	Short: "Show or change the color theme",
	Long: `Show or change the color theme of text output. The theme is stored apart
from the session and survives 'hwclaim reset'.

Examples:
  hwclaim theme light
  hwclaim theme`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"dark", "light"},
	RunE:      runTheme,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(themeCmd)
}

func runTheme(cmd *cobra.Command, args []string) error {
	settings, err := store.LoadSettings()
	if err != nil {
		logger.Error("loading settings: %v", err)
	}

	if len(args) == 1 {
		theme, err := session.ParseTheme(args[0])
		if err != nil {
			return err
		}
		settings.Theme = theme
		if err := store.SaveSettings(settings); err != nil {
			return err
		}
		formatter.WithTheme(output.ThemeByName(theme, formatter.Theme().Plain()))
	}

	if formatter.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), settings)
	}
	return formatter.Field("Theme", formatter.Theme().Title(themeLabel(settings.Theme)))
}

func themeLabel(theme string) string {
	if theme == session.ThemeLight {
		return "light"
	}
	return "dark"
}
