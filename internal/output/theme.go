package output

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme names. They match the values stored in settings.json.
const (
	ThemeDark  = "tdark"
	ThemeLight = "tlight"
)

// Theme holds the styles of text output.
type Theme struct {
	Name  string
	plain bool

	title    lipgloss.Style
	label    lipgloss.Style
	value    lipgloss.Style
	amount   lipgloss.Style
	positive lipgloss.Style
	warning  lipgloss.Style
	danger   lipgloss.Style
	muted    lipgloss.Style
	header   lipgloss.Style
}

// ThemeByName returns the named theme. Unknown names fall back to dark.
// With plain set every style renders its input unchanged.
func ThemeByName(name string, plain bool) *Theme {
	if plain {
		return plainTheme(name)
	}
	if name == ThemeLight {
		return lightTheme()
	}
	return darkTheme()
}

func darkTheme() *Theme {
	return &Theme{
		Name:     ThemeDark,
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		label:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		value:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		amount:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		positive: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		danger:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		muted:    lipgloss.NewStyle().Faint(true),
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
	}
}

func lightTheme() *Theme {
	return &Theme{
		Name:     ThemeLight,
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("25")),
		label:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		value:    lipgloss.NewStyle().Foreground(lipgloss.Color("235")),
		amount:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("130")),
		positive: lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
		warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("166")),
		danger:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("160")),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("246")),
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("25")),
	}
}

func plainTheme(name string) *Theme {
	if name != ThemeLight {
		name = ThemeDark
	}
	s := lipgloss.NewStyle()
	return &Theme{
		Name: name, plain: true, title: s, label: s, value: s, amount: s,
		positive: s, warning: s, danger: s, muted: s, header: s,
	}
}

// Plain reports whether the theme renders without styling.
func (t *Theme) Plain() bool { return t.plain }

// Title styles a section title.
func (t *Theme) Title(s string) string { return t.title.Render(s) }

// Label styles a field label.
func (t *Theme) Label(s string) string { return t.label.Render(s) }

// Value styles a field value.
func (t *Theme) Value(s string) string { return t.value.Render(s) }

// Amount styles a coin amount.
func (t *Theme) Amount(s string) string { return t.amount.Render(s) }

// Positive styles good news such as a broadcast txid.
func (t *Theme) Positive(s string) string { return t.positive.Render(s) }

// Warning styles a warning.
func (t *Theme) Warning(s string) string { return t.warning.Render(s) }

// Danger styles an error.
func (t *Theme) Danger(s string) string { return t.danger.Render(s) }

// Muted styles secondary text.
func (t *Theme) Muted(s string) string { return t.muted.Render(s) }

// Header styles a table header cell.
func (t *Theme) Header(s string) string { return t.header.Render(s) }
