// Package viewer is the single-flight gate between document views and the
// hex dump generator. It owns the session cache, resolves "open hex" paths,
// and reports every state change to the event hub and the history store.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/hexview/internal/events"
	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/history"
	"github.com/mattjoyce/hexview/internal/log"
	"github.com/mattjoyce/hexview/internal/session"
	"github.com/mattjoyce/hexview/internal/workspace"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = session.ErrNotFound

// EventData is the payload of every event the manager publishes.
type EventData struct {
	SessionID  string           `json:"session_id"`
	Path       string           `json:"path"`
	Title      string           `json:"title"`
	Options    *hexdump.Options `json:"options,omitempty"`
	Bytes      int              `json:"bytes,omitempty"`
	DurationMS int64            `json:"duration_ms,omitempty"`
	ErrorKind  hexdump.Kind     `json:"error_kind,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Manager coordinates sessions, generation and invalidation.
type Manager struct {
	cache    *session.Cache
	gen      Generator
	resolver *workspace.Resolver
	defaults hexdump.Options

	recorder Recorder
	watcher  Watcher
	hub      *events.Hub
	logger   *slog.Logger

	newID func() string
	now   func() time.Time

	// openMu serialises Open so two requests for one path share a session.
	openMu sync.Mutex
}

type Option func(*Manager)

// WithDefaults sets the options used on a document's first activation.
func WithDefaults(opts hexdump.Options) Option {
	return func(m *Manager) { m.defaults = opts.Normalize() }
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

func WithWatcher(w Watcher) Option {
	return func(m *Manager) { m.watcher = w }
}

func WithHub(h *events.Hub) Option {
	return func(m *Manager) { m.hub = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Manager. gen and resolver are required.
func New(gen Generator, resolver *workspace.Resolver, opts ...Option) *Manager {
	m := &Manager{
		cache:    session.NewCache(),
		gen:      gen,
		resolver: resolver,
		defaults: hexdump.DefaultOptions(),
		logger:   log.WithComponent("viewer"),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetWatcher attaches a watcher after construction; the watcher's callback
// usually needs the manager first.
func (m *Manager) SetWatcher(w Watcher) {
	m.watcher = w
}

// Defaults returns the options used on first activation.
func (m *Manager) Defaults() hexdump.Options { return m.defaults }

// Open resolves path and returns its session, creating one if the file is
// not open yet. existed is true when an open session was focused instead.
// Opening never generates a dump.
func (m *Manager) Open(ctx context.Context, path string) (snap session.Snapshot, existed bool, err error) {
	abs, err := m.resolver.Resolve(path)
	if err != nil {
		return session.Snapshot{}, false, err
	}

	m.openMu.Lock()
	defer m.openMu.Unlock()

	if snap, ok := m.cache.FindByPath(abs); ok {
		m.publish(events.SessionFocused, eventData(snap))
		return snap, true, nil
	}

	id := m.newID()
	snap = m.cache.GetOrCreate(id, abs, m.defaults)
	if m.watcher != nil {
		if err := m.watcher.Watch(abs); err != nil {
			m.logger.Warn("cannot watch file", "path", abs, "error", err)
		}
	}

	log.WithSession(id).Info("session opened", "path", abs)
	m.publish(events.SessionOpened, eventData(snap))
	return snap, false, nil
}

// Activate marks the session visible. A session without a dump, whether
// new, invalidated or left empty by a failed generation, is generated with
// its own options, which start as the configured defaults. Otherwise the
// cached dump is returned.
func (m *Manager) Activate(ctx context.Context, id string) (session.Snapshot, error) {
	if _, err := m.cache.MarkActivated(id); err != nil {
		return session.Snapshot{}, err
	}

	snap, ok := m.cache.Get(id)
	if !ok {
		return session.Snapshot{}, ErrNotFound
	}
	if snap.DumpText == "" && !snap.Generating {
		return m.Update(ctx, id, snap.Options)
	}
	m.publish(events.SessionFocused, eventData(snap))
	return snap, nil
}

// Update requests a dump of the session's file with opts. It spawns at most
// one generation per session: while one is in flight further requests fail
// with hexdump.ErrAlreadyRunning and leave the session untouched. Equal
// options with a cached dump return the cache without spawning.
//
// On failure the returned snapshot still carries the previous dump.
func (m *Manager) Update(ctx context.Context, id string, opts hexdump.Options) (session.Snapshot, error) {
	opts = opts.Normalize()
	logger := log.WithSession(id)

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticket, snap, reuse, err := m.cache.Begin(id, opts, cancel)
	switch {
	case errors.Is(err, hexdump.ErrAlreadyRunning):
		logger.Debug("update rejected, generation in flight")
		data := eventData(snap)
		data.Options = &opts
		data.ErrorKind = hexdump.KindAlreadyRunning
		m.publish(events.HexRejected, data)
		return snap, &hexdump.Error{Kind: hexdump.KindAlreadyRunning, Op: "update " + id}
	case err != nil:
		return session.Snapshot{}, err
	case reuse:
		m.publish(events.HexCached, eventData(snap))
		return snap, nil
	}

	data := eventData(snap)
	data.Options = &opts
	m.publish(events.HexGenerating, data)

	start := m.now()
	text, genErr := m.gen.Generate(genCtx, snap.Path, opts)
	elapsed := m.now().Sub(start)

	entry := history.Entry{
		SessionID: id,
		Path:      snap.Path,
		Options:   opts,
		Duration:  elapsed,
		CreatedAt: start,
	}

	if genErr != nil {
		m.cache.Abort(ticket)
		entry.Status = history.StatusFailed
		entry.ErrorKind = hexdump.KindOf(genErr)
		entry.LastError = genErr.Error()
		var he *hexdump.Error
		if errors.As(genErr, &he) {
			entry.Stderr = he.Stderr
		}
		m.record(ctx, entry)

		logger.Warn("hex dump failed", "path", snap.Path, "kind", entry.ErrorKind, "error", genErr)
		data.ErrorKind = entry.ErrorKind
		data.Error = genErr.Error()
		data.DurationMS = elapsed.Milliseconds()
		m.publish(events.HexFailed, data)

		current, ok := m.cache.Get(id)
		if !ok {
			current = snap
		}
		return current, fmt.Errorf("update %s: %w", id, genErr)
	}

	updated, err := m.cache.Update(ticket, opts, text)
	entry.OutputBytes = len(text)
	if err != nil {
		entry.Status = history.StatusSuperseded
		m.record(ctx, entry)
		logger.Info("hex dump discarded", "path", snap.Path, "reason", err)
		return updated, err
	}

	entry.Status = history.StatusSucceeded
	m.record(ctx, entry)

	data.Bytes = len(text)
	data.DurationMS = elapsed.Milliseconds()
	m.publish(events.HexUpdated, data)
	logger.Debug("hex dump updated", "path", snap.Path, "bytes", len(text))
	return updated, nil
}

// Close destroys the session and cancels its in-flight generation.
func (m *Manager) Close(id string) error {
	snap, err := m.cache.Close(id)
	if err != nil {
		return err
	}
	if m.watcher != nil {
		m.watcher.Unwatch(snap.Path)
	}
	log.WithSession(id).Info("session closed", "path", snap.Path)
	m.publish(events.SessionClosed, eventData(snap))
	return nil
}

// Invalidate drops the cached dump of every session open on path and
// returns their IDs.
func (m *Manager) Invalidate(path string) []string {
	var ids []string
	for _, snap := range m.cache.ByPath(path) {
		if err := m.cache.Invalidate(snap.ID); err != nil {
			continue
		}
		ids = append(ids, snap.ID)
		m.publish(events.SessionInvalidated, eventData(snap))
	}
	if len(ids) > 0 {
		log.WithPath(path).Info("cached dumps invalidated", "sessions", len(ids))
	}
	return ids
}

// Get returns the session with its dump text.
func (m *Manager) Get(id string) (session.Snapshot, error) {
	snap, ok := m.cache.Get(id)
	if !ok {
		return session.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// List returns all open sessions without dump text, oldest first.
func (m *Manager) List() []session.Snapshot {
	return m.cache.List()
}

// Stats reports the number of open sessions and in-flight generations.
func (m *Manager) Stats() (open, generating int) {
	return m.cache.Len(), m.cache.GeneratingCount()
}

// CloseAll closes every open session.
func (m *Manager) CloseAll() {
	for _, snap := range m.cache.List() {
		_ = m.Close(snap.ID)
	}
}

func (m *Manager) record(ctx context.Context, e history.Entry) {
	if m.recorder == nil {
		return
	}
	if _, err := m.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		m.logger.Warn("failed to record generation", "session_id", e.SessionID, "error", err)
	}
}

func (m *Manager) publish(eventType string, data EventData) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(eventType, data.SessionID, data)
}

func eventData(s session.Snapshot) EventData {
	return EventData{SessionID: s.ID, Path: s.Path, Title: s.Title}
}
