package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hexview/internal/events"
	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/log"
	"github.com/mattjoyce/hexview/internal/session"
	"github.com/mattjoyce/hexview/internal/viewer"
	"github.com/mattjoyce/hexview/internal/workspace"
)

// Viewer is the subset of viewer.Manager the TUI drives.
type Viewer interface {
	Open(ctx context.Context, path string) (session.Snapshot, bool, error)
	Activate(ctx context.Context, id string) (session.Snapshot, error)
	Update(ctx context.Context, id string, opts hexdump.Options) (session.Snapshot, error)
	Close(id string) error
}

// Rows used by everything except the dump pane: tabs, toolbar, the two
// border lines, status and help.
const chromeHeight = 6

type document struct {
	id         string
	path       string
	title      string
	opts       hexdump.Options
	text       string
	generating bool
}

// Model is the BubbleTea model for the hex viewer.
type Model struct {
	ctx    context.Context
	viewer Viewer
	events <-chan events.Event
	paths  []string

	docs   []*document
	active int

	toolbar  toolbar
	viewport viewport.Model
	theme    Theme

	width  int
	height int

	status    string
	statusErr bool
	// openErr holds open failures until the focused document's dump
	// arrives, so its status does not hide them.
	openErr string
}

// Option configures a Model.
type Option func(*Model)

// WithEvents feeds hub events into the model. Invalidations of the visible
// document trigger regeneration.
func WithEvents(ch <-chan events.Event) Option {
	return func(m *Model) { m.events = ch }
}

// WithTheme selects the starting theme.
func WithTheme(name string) Option {
	return func(m *Model) { m.theme = NewTheme(name) }
}

// New creates a viewer model that opens paths on start.
func New(ctx context.Context, v Viewer, paths []string, opts ...Option) *Model {
	m := &Model{
		ctx:      ctx,
		viewer:   v,
		paths:    paths,
		toolbar:  newToolbar(),
		viewport: viewport.New(0, 0),
		theme:    NewTheme(ThemeDark),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.viewport.Style = m.theme.Dump
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tea.EnterAltScreen, receiveNextEvent(m.events)}
	if len(m.paths) > 0 {
		cmds = append(cmds, openPaths(m.ctx, m.viewer, m.paths))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case openedMsg:
		return m.handleOpened(msg)

	case dumpMsg:
		return m.handleDump(msg)

	case eventMsg:
		cmd := m.handleEvent(events.Event(msg))
		return m, tea.Batch(cmd, receiveNextEvent(m.events))
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "tab":
		return m, m.toolbar.next()
	case "shift+tab":
		return m, m.toolbar.prev()
	case "ctrl+n":
		return m, m.switchTo(m.active + 1)
	case "ctrl+p":
		return m, m.switchTo(m.active - 1)
	case "ctrl+w":
		return m, m.closeActive()
	case "ctrl+t":
		m.theme = m.theme.Toggle()
		m.viewport.Style = m.theme.Dump
		return m, nil
	case "enter":
		return m, m.apply()
	}

	if m.toolbar.editing() {
		return m, m.toolbar.update(msg)
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case " ":
		if m.toolbar.focus == focusStrip {
			m.toolbar.strip = !m.toolbar.strip
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleOpened(results openedMsg) (tea.Model, tea.Cmd) {
	focus := -1
	var failures []string
	for _, r := range results {
		if r.err != nil {
			if errors.Is(r.err, workspace.ErrIsDirectory) {
				continue
			}
			failures = append(failures, r.err.Error())
			continue
		}
		idx := m.indexOf(r.snap.ID)
		if idx < 0 {
			m.docs = append(m.docs, &document{
				id:    r.snap.ID,
				path:  r.snap.Path,
				title: r.snap.Title,
				opts:  r.snap.Options,
				text:  r.snap.DumpText,
			})
			idx = len(m.docs) - 1
		}
		focus = idx
	}

	var cmd tea.Cmd
	if focus >= 0 {
		cmd = m.switchTo(focus)
	}
	if len(failures) > 0 {
		m.setError(strings.Join(failures, "; "))
		if cmd != nil {
			m.openErr = m.status
		}
	}
	return m, cmd
}

func (m Model) handleDump(msg dumpMsg) (tea.Model, tea.Cmd) {
	doc := m.doc(msg.id)
	if doc == nil {
		return m, nil
	}

	if msg.err != nil {
		if !errors.Is(msg.err, hexdump.ErrAlreadyRunning) {
			doc.generating = false
		}
		switch {
		case errors.Is(msg.err, session.ErrSuperseded):
			doc.text = ""
			if m.isActive(doc.id) {
				m.setBusy("file changed, regenerating")
				return m, activate(m.ctx, m.viewer, doc.id)
			}
			return m, nil
		case errors.Is(msg.err, session.ErrNotFound):
			m.removeDoc(doc.id)
			return m, nil
		}
		log.WithSession(doc.id).Debug("dump request failed", "error", msg.err)
		m.settle(describeError(msg.err), true)
		return m, nil
	}

	doc.generating = false
	doc.text = msg.snap.DumpText
	doc.opts = msg.snap.Options
	if m.isActive(doc.id) {
		m.toolbar.set(doc.opts)
		m.viewport.SetContent(doc.text)
		m.settle(fmt.Sprintf("%d bytes of dump", len(doc.text)), false)
	}
	return m, nil
}

// HandledEvents lists the hub event types the model reacts to.
var HandledEvents = []string{
	events.HexGenerating,
	events.HexFailed,
	events.HexUpdated,
	events.SessionInvalidated,
	events.SessionClosed,
}

func (m *Model) handleEvent(e events.Event) tea.Cmd {
	var data viewer.EventData
	if err := e.Decode(&data); err != nil {
		return nil
	}
	doc := m.doc(data.SessionID)
	if doc == nil {
		return nil
	}

	switch e.Type {
	case events.HexGenerating:
		doc.generating = true
		if m.isActive(doc.id) {
			m.setBusy("generating")
		}
	case events.HexFailed, events.HexUpdated:
		doc.generating = false
	case events.SessionInvalidated:
		doc.text = ""
		if m.isActive(doc.id) && !doc.generating {
			m.setBusy("file changed, regenerating")
			return activate(m.ctx, m.viewer, doc.id)
		}
	case events.SessionClosed:
		m.removeDoc(doc.id)
	}
	return nil
}

// apply sends the toolbar options for the visible document.
func (m *Model) apply() tea.Cmd {
	doc := m.current()
	if doc == nil {
		return nil
	}
	opts := m.toolbar.options()
	m.toolbar.set(opts)
	m.setBusy("generating")
	return update(m.ctx, m.viewer, doc.id, opts)
}

// switchTo shows document i, wrapping around, and activates it.
func (m *Model) switchTo(i int) tea.Cmd {
	if len(m.docs) == 0 {
		return nil
	}
	m.active = (i%len(m.docs) + len(m.docs)) % len(m.docs)
	doc := m.docs[m.active]
	m.toolbar.set(doc.opts)
	m.viewport.SetContent(doc.text)
	m.viewport.GotoTop()
	if doc.text == "" {
		m.setBusy("generating")
	}
	return activate(m.ctx, m.viewer, doc.id)
}

func (m *Model) closeActive() tea.Cmd {
	doc := m.current()
	if doc == nil {
		return nil
	}
	if err := m.viewer.Close(doc.id); err != nil && !errors.Is(err, session.ErrNotFound) {
		m.setError(err.Error())
	}
	m.removeDoc(doc.id)
	if len(m.docs) == 0 {
		return nil
	}
	return m.switchTo(m.active)
}

func (m *Model) removeDoc(id string) {
	idx := m.indexOf(id)
	if idx < 0 {
		return
	}
	m.docs = append(m.docs[:idx:idx], m.docs[idx+1:]...)
	switch {
	case idx < m.active:
		m.active--
	case m.active >= len(m.docs) && m.active > 0:
		m.active = len(m.docs) - 1
	}
	if len(m.docs) == 0 {
		m.active = 0
		m.viewport.SetContent("")
		return
	}
	if idx <= m.active {
		cur := m.docs[m.active]
		m.toolbar.set(cur.opts)
		m.viewport.SetContent(cur.text)
	}
}

func (m *Model) resize() {
	w := m.width - 2
	h := m.height - chromeHeight
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	m.viewport.Width = w
	m.viewport.Height = h
}

func (m Model) current() *document {
	if m.active < 0 || m.active >= len(m.docs) {
		return nil
	}
	return m.docs[m.active]
}

func (m Model) doc(id string) *document {
	if idx := m.indexOf(id); idx >= 0 {
		return m.docs[idx]
	}
	return nil
}

func (m Model) indexOf(id string) int {
	for i, d := range m.docs {
		if d.id == id {
			return i
		}
	}
	return -1
}

func (m Model) isActive(id string) bool {
	doc := m.current()
	return doc != nil && doc.id == id
}

func (m *Model) setStatus(s string) { m.status, m.statusErr = s, false }
func (m *Model) setBusy(s string)   { m.status, m.statusErr = s+"...", false }
func (m *Model) setError(s string)  { m.status, m.statusErr = s, true }

// settle sets the status for a finished dump request, prefixed by any
// pending open failures.
func (m *Model) settle(s string, isErr bool) {
	if m.openErr != "" {
		s, isErr = m.openErr+"; "+s, true
		m.openErr = ""
	}
	m.status, m.statusErr = s, isErr
}

func describeError(err error) string {
	switch hexdump.KindOf(err) {
	case hexdump.KindAlreadyRunning:
		return "a dump is already being generated for this document"
	case hexdump.KindSpawnFailed:
		return "could not start xxd: " + err.Error()
	case hexdump.KindTimeout:
		return "xxd timed out"
	}
	return err.Error()
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing hexview..."
	}

	body := m.viewport.View()
	if len(m.docs) == 0 {
		body = m.theme.Dim.Render("No documents open")
	} else if doc := m.current(); doc.text == "" && doc.generating {
		body = m.theme.Dim.Render("Generating dump...")
	}

	help := m.theme.Dim.Render(" [tab] Focus • [enter] Apply • [ctrl+n/p] Document • [ctrl+w] Close • [ctrl+t] Theme • [q] Quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTabs(),
		m.toolbar.view(m.theme),
		m.theme.Border.Width(m.viewport.Width).Height(m.viewport.Height).Render(body),
		m.renderStatus(),
		help,
	)
}

func (m Model) renderTabs() string {
	if len(m.docs) == 0 {
		return m.theme.TabInactive.Render("hexview")
	}
	tabs := make([]string, 0, len(m.docs))
	for i, d := range m.docs {
		style := m.theme.TabInactive
		if i == m.active {
			style = m.theme.TabActive
		}
		tabs = append(tabs, style.Render(d.title))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderStatus() string {
	doc := m.current()
	if doc == nil {
		return ""
	}
	path := m.theme.Dim.Render(fmt.Sprintf(" %s  %d/%d +%d", doc.path, doc.opts.RowBytes, doc.opts.ColBytes, doc.opts.Offset))
	if m.status == "" {
		return path
	}
	style := m.theme.Status
	switch {
	case m.statusErr:
		style = m.theme.StatusErr
		return path + "  " + style.Render("⚠ "+m.status)
	case doc.generating:
		style = m.theme.StatusBusy
	}
	return path + "  " + style.Render(m.status)
}
