package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hexview/internal/events"
	"github.com/mattjoyce/hexview/internal/viewer"
)

const streamRows = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for _, e := range eventLog[:min(len(eventLog), streamRows)] {
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	var typeStyle lipgloss.Style
	switch e.Type {
	case events.HexUpdated, events.HexCached:
		typeStyle = theme.StatusOK
	case events.HexFailed, events.HexRejected:
		typeStyle = theme.StatusFailed
	case events.HexGenerating:
		typeStyle = theme.StatusRunning
	case events.SessionInvalidated:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	return fmt.Sprintf("%s %s %s",
		theme.Dim.Render(e.At.Format("15:04:05")),
		typeStyle.Render(fmt.Sprintf("%-20s", e.Type)),
		describeEvent(e),
	)
}

// describeEvent summarises an event payload in one line.
func describeEvent(e events.Event) string {
	var data viewer.EventData
	if err := e.Decode(&data); err != nil || data.SessionID == "" {
		return truncate(string(e.Data), 60)
	}

	parts := []string{data.Title}
	if data.Options != nil {
		parts = append(parts, optionsLabel(*data.Options))
	}
	if data.Bytes > 0 {
		parts = append(parts, fmt.Sprintf("%d bytes", data.Bytes))
	}
	if data.DurationMS > 0 {
		parts = append(parts, fmt.Sprintf("%dms", data.DurationMS))
	}
	if data.ErrorKind != "" {
		parts = append(parts, string(data.ErrorKind))
	}
	return strings.Join(parts, " ")
}
