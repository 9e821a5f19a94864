// Package watch is a dashboard for a running hexview serve instance. It
// follows /events over SSE and polls /healthz.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme holds every style the dashboard renders with.
type Theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	Selected  lipgloss.Style

	PulseOn  lipgloss.Style
	PulseOff lipgloss.Style
}

// NewTheme returns the "light" palette for name == "light" and the dark
// palette otherwise.
func NewTheme(name string) Theme {
	accent := lipgloss.Color("#874BFD")
	title := lipgloss.Color("#FAFAFA")
	dim := lipgloss.Color("#888888")
	if name == "light" {
		accent = lipgloss.Color("#1F5FBF")
		title = lipgloss.Color("#1A1A1A")
		dim = lipgloss.Color("#6B6B6B")
	}

	return Theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#2EB82E")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#D7A300")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E03C31")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent),
		Title:     lipgloss.NewStyle().Bold(true).Foreground(title).Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(dim),
		Highlight: lipgloss.NewStyle().Foreground(accent),
		Selected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(accent),

		PulseOn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#2EB82E")),
		PulseOff: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}
