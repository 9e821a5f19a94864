package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState is the last /healthz answer plus connection status.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	OpenSessions  int
	Generating    int
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, ticker Ticker, pulse Pulse, theme Theme, width int) string {
	innerWidth := width - 4

	status := theme.StatusOK.Render("HEALTHY")
	switch {
	case !health.Connected:
		status = theme.StatusFailed.Render("CONNECTING")
	case health.Status != "ok" && health.Status != "":
		status = theme.StatusFailed.Render("DEGRADED")
	}

	lastEvent := "never"
	if !pulse.LastEvent().IsZero() {
		lastEvent = formatAgo(time.Since(pulse.LastEvent()))
	}

	title := fmt.Sprintf(" HEXVIEW WATCH %s", theme.Highlight.Render(ticker.Current()))
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	generating := fmt.Sprintf("Generating: %d", health.Generating)
	if health.Generating > 0 {
		generating = theme.StatusRunning.Render(generating)
	}
	statsLine := fmt.Sprintf(" %s  up %s  Sessions: %d  %s",
		status,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		health.OpenSessions,
		generating,
	)
	activityLine := fmt.Sprintf(" Last event: %s %s", lastEvent, pulse.Render(theme))

	return theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatAgo(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
