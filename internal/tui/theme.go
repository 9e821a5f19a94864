// Package tui is the terminal hex viewer: document tabs, an options
// toolbar and a read-only dump pane driven by viewer.Manager.
package tui

import "github.com/charmbracelet/lipgloss"

// Theme names accepted by NewTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Theme centralizes all styling for the viewer.
type Theme struct {
	Name string

	TabActive   lipgloss.Style
	TabInactive lipgloss.Style

	Label        lipgloss.Style
	Field        lipgloss.Style
	FieldFocused lipgloss.Style

	Dump   lipgloss.Style
	Border lipgloss.Style

	Status     lipgloss.Style
	StatusBusy lipgloss.Style
	StatusErr  lipgloss.Style
	Dim        lipgloss.Style
}

// NewTheme returns the named theme. Unknown names fall back to dark.
func NewTheme(name string) Theme {
	if name == ThemeLight {
		return newLightTheme()
	}
	return newDarkTheme()
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t.Name == ThemeLight {
		return newDarkTheme()
	}
	return newLightTheme()
}

func newDarkTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Name: ThemeDark,

		TabActive: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(purple).
			Padding(0, 1),
		TabInactive: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1),

		Label:        lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
		Field:        lipgloss.NewStyle().Foreground(lipgloss.Color("#DDDDDD")),
		FieldFocused: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Bold(true),

		Dump: lipgloss.NewStyle().Foreground(lipgloss.Color("#DDDDDD")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),

		Status:     lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusBusy: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusErr:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
}

func newLightTheme() Theme {
	blue := lipgloss.Color("#1F5FBF")

	return Theme{
		Name: ThemeLight,

		TabActive: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(blue).
			Padding(0, 1),
		TabInactive: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Padding(0, 1),

		Label:        lipgloss.NewStyle().Foreground(blue),
		Field:        lipgloss.NewStyle().Foreground(lipgloss.Color("#222222")),
		FieldFocused: lipgloss.NewStyle().Foreground(lipgloss.Color("#B35900")).Bold(true),

		Dump: lipgloss.NewStyle().Foreground(lipgloss.Color("#222222")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(blue),

		Status:     lipgloss.NewStyle().Foreground(lipgloss.Color("#007A00")),
		StatusBusy: lipgloss.NewStyle().Foreground(lipgloss.Color("#8A6D00")),
		StatusErr:  lipgloss.NewStyle().Foreground(lipgloss.Color("#C00000")),
		Dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("#777777")),
	}
}
