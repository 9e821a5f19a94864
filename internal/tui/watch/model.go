package watch

import (
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/hexview/internal/events"
)

const (
	maxEventLog    = 50
	healthInterval = 5 * time.Second
	reconnectDelay = 3 * time.Second
)

// Model is the BubbleTea model for the watch dashboard.
type Model struct {
	apiURL string
	apiKey string
	client *http.Client

	width  int
	height int

	health   HealthState
	sessions map[string]*SessionState
	eventLog []events.Event
	lastID   int64

	ticker Ticker
	pulse  Pulse

	theme    Theme
	selected int

	hubEvents chan events.Event

	lastError string
}

type Option func(*Model)

func WithTheme(name string) Option {
	return func(m *Model) { m.theme = NewTheme(name) }
}

// WithHTTPClient replaces the client used for /healthz. The SSE stream
// always uses a client without a timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Model) { m.client = c }
}

// New creates a dashboard for the server at apiURL.
func New(apiURL, apiKey string, opts ...Option) *Model {
	m := &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 2 * time.Second},
		sessions:  make(map[string]*SessionState),
		hubEvents: make(chan events.Event, 100),
		ticker:    NewTicker(),
		pulse:     NewPulse(),
		theme:     NewTheme("dark"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.subscribe(),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.client, m.apiURL) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) subscribe() tea.Cmd {
	return subscribeToEvents(http.DefaultClient, m.apiURL, m.apiKey, m.lastID, m.hubEvents)
}

func (m Model) pollHealth(after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg { return fetchHealth(m.client, m.apiURL) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.sessions)-1 {
				m.selected++
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.ticker.Tick()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		if e.Type == events.StreamReset {
			// The replay that follows rebuilds the dashboard from scratch.
			clear(m.sessions)
			m.lastID = 0
		}
		if e.ID > m.lastID {
			m.lastID = e.ID
		}

		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.pulse.OnEvent()

		updateSessionState(m.sessions, e)
		if m.selected >= len(m.sessions) {
			m.selected = max(len(m.sessions)-1, 0)
		}

		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.OpenSessions = msg.OpenSessions
		m.health.Generating = msg.Generating
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, m.pollHealth(healthInterval)

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the same channel.
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.subscribe()

	case errMsg:
		m.lastError = msg.Error()
		return m, m.pollHealth(healthInterval)
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing hexview watch..."
	}

	parts := []string{
		renderHeader(m.health, m.ticker, m.pulse, m.theme, m.width),
		renderSessions(sortedSessions(m.sessions), m.selected, m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Select session"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
