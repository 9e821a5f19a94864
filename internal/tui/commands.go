package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/hexview/internal/events"
	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/session"
)

// --- Message types ---

type eventMsg events.Event

type openResult struct {
	path    string
	snap    session.Snapshot
	existed bool
	err     error
}

type openedMsg []openResult

// dumpMsg carries the outcome of Activate or Update for one session.
type dumpMsg struct {
	id   string
	snap session.Snapshot
	err  error
}

// --- Commands ---

func openPaths(ctx context.Context, v Viewer, paths []string) tea.Cmd {
	return func() tea.Msg {
		results := make(openedMsg, 0, len(paths))
		for _, p := range paths {
			snap, existed, err := v.Open(ctx, p)
			results = append(results, openResult{path: p, snap: snap, existed: existed, err: err})
		}
		return results
	}
}

func activate(ctx context.Context, v Viewer, id string) tea.Cmd {
	return func() tea.Msg {
		snap, err := v.Activate(ctx, id)
		return dumpMsg{id: id, snap: snap, err: err}
	}
}

func update(ctx context.Context, v Viewer, id string, opts hexdump.Options) tea.Cmd {
	return func() tea.Msg {
		snap, err := v.Update(ctx, id, opts)
		return dumpMsg{id: id, snap: snap, err: err}
	}
}

// receiveNextEvent waits for the next hub event.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}
