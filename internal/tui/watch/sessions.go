package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hexview/internal/events"
	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/viewer"
)

// Session states shown in the dashboard.
const (
	stateIdle        = "idle"
	stateGenerating  = "generating"
	stateReady       = "ready"
	stateFailed      = "failed"
	stateInvalidated = "invalidated"
)

// SessionState is one document as seen through the event stream.
type SessionState struct {
	ID        string
	Title     string
	Path      string
	State     string
	Options   hexdump.Options
	Bytes     int
	Duration  time.Duration
	ErrorKind hexdump.Kind
	Error     string
	Started   time.Time
	Updated   time.Time
	OpenedAt  time.Time
}

// updateSessionState applies e to the tracked sessions. Closed sessions are
// removed.
func updateSessionState(sessions map[string]*SessionState, e events.Event) {
	var data viewer.EventData
	if err := e.Decode(&data); err != nil || data.SessionID == "" {
		return
	}

	if e.Type == events.SessionClosed {
		delete(sessions, data.SessionID)
		return
	}

	s, ok := sessions[data.SessionID]
	if !ok {
		s = &SessionState{ID: data.SessionID, State: stateIdle, OpenedAt: e.At}
		sessions[data.SessionID] = s
	}
	if data.Title != "" {
		s.Title = data.Title
	}
	if data.Path != "" {
		s.Path = data.Path
	}

	switch e.Type {
	case events.HexGenerating:
		s.State = stateGenerating
		s.Started = e.At
		if data.Options != nil {
			s.Options = *data.Options
		}
	case events.HexUpdated:
		s.State = stateReady
		s.Bytes = data.Bytes
		s.Duration = time.Duration(data.DurationMS) * time.Millisecond
		s.ErrorKind, s.Error = "", ""
	case events.HexCached:
		if s.State != stateGenerating {
			s.State = stateReady
		}
	case events.HexFailed:
		s.State = stateFailed
		s.ErrorKind = data.ErrorKind
		s.Error = data.Error
		s.Duration = time.Duration(data.DurationMS) * time.Millisecond
	case events.SessionInvalidated:
		if s.State != stateGenerating {
			s.State = stateInvalidated
		}
	}
	s.Updated = e.At
}

// sortedSessions returns sessions oldest-opened first, ties broken by ID.
func sortedSessions(sessions map[string]*SessionState) []*SessionState {
	out := make([]*SessionState, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func renderSessions(sessions []*SessionState, selected int, theme Theme, width int) string {
	innerWidth := width - 4

	if len(sessions) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("SESSIONS"),
			theme.Dim.Render("  No documents open yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	lines := []string{theme.Title.Render("SESSIONS")}
	for i, s := range sessions {
		lines = append(lines, renderSessionRow(i+1, s, i == selected, theme))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderSessionRow(num int, s *SessionState, isSelected bool, theme Theme) string {
	name := fmt.Sprintf("%-24s", truncate(s.Title, 24))
	if isSelected {
		name = theme.Selected.Render(name)
	}

	var status, detail string
	switch s.State {
	case stateGenerating:
		status = theme.StatusRunning.Render("[generating]")
		detail = theme.Dim.Render(fmt.Sprintf("%s %s", optionsLabel(s.Options), time.Since(s.Started).Round(100*time.Millisecond)))
	case stateReady:
		status = theme.StatusOK.Render("[ready]")
		detail = theme.Dim.Render(fmt.Sprintf("%s %d bytes in %s", optionsLabel(s.Options), s.Bytes, s.Duration))
	case stateFailed:
		status = theme.StatusFailed.Render("[" + string(s.ErrorKind) + "]")
		detail = theme.Dim.Render(truncate(s.Error, 48))
	case stateInvalidated:
		status = theme.Highlight.Render("[stale]")
		detail = theme.Dim.Render("file changed")
	default:
		status = theme.Dim.Render("[idle]")
	}

	line := fmt.Sprintf(" %d. %s %s %s", num, name, status, detail)
	if isSelected && s.Path != "" {
		line += "\n    └─ " + theme.Dim.Render(s.Path)
	}
	return line
}

func optionsLabel(o hexdump.Options) string {
	if o.RowBytes == 0 {
		return "-"
	}
	label := fmt.Sprintf("%d/%d+%d", o.RowBytes, o.ColBytes, o.Offset)
	if o.StripOffsets {
		label += " s"
	}
	return label
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
