// Package session holds per-document hex dump state: the options that last
// produced a dump and the dump text itself.
package session

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/hexview/internal/hexdump"
)

// Session is the state of one open document. Fields are only mutated by the
// Cache under its lock; callers read them through Snapshot.
type Session struct {
	ID        string
	Path      string
	Options   hexdump.Options
	DumpText  string
	UpdatedAt time.Time
	OpenedAt  time.Time

	generating bool
	activated  bool
	epoch      uint64
	cancel     context.CancelFunc
}

// Snapshot is an immutable copy of a Session.
type Snapshot struct {
	ID         string          `json:"id"`
	Path       string          `json:"path"`
	Title      string          `json:"title"`
	Options    hexdump.Options `json:"options"`
	DumpText   string          `json:"dump_text,omitempty"`
	Generating bool            `json:"generating"`
	UpdatedAt  time.Time       `json:"updated_at,omitzero"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// NeedsRegeneration reports whether opts differ from the cached options or
// nothing has been generated yet.
func (s *Session) NeedsRegeneration(opts hexdump.Options) bool {
	return s.DumpText == "" || !s.Options.Equal(opts)
}

// Generating reports whether a generation is in flight.
func (s *Session) Generating() bool { return s.generating }

func (s *Session) snapshot(withText bool) Snapshot {
	snap := Snapshot{
		ID:         s.ID,
		Path:       s.Path,
		Title:      filepath.Base(s.Path),
		Options:    s.Options,
		Generating: s.generating,
		UpdatedAt:  s.UpdatedAt,
		OpenedAt:   s.OpenedAt,
	}
	if withText {
		snap.DumpText = s.DumpText
	}
	return snap
}

// Ticket identifies one in-flight generation. Commit succeeds only if the
// ticket still matches the session's epoch.
type Ticket struct {
	id    string
	epoch uint64
}

// Cache maps document IDs to sessions.
type Cache struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// GetOrCreate returns the session for id, creating one with opts and an
// empty dump if needed. It never triggers generation.
func (c *Cache) GetOrCreate(id, path string, opts hexdump.Options) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[id]; ok {
		return s.snapshot(true)
	}
	s := &Session{
		ID:       id,
		Path:     path,
		Options:  opts.Normalize(),
		OpenedAt: c.now().UTC(),
	}
	c.sessions[id] = s
	return s.snapshot(true)
}

// Get returns a snapshot of the session for id.
func (c *Cache) Get(id string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(true), true
}

// FindByPath returns the oldest session open on path.
func (c *Cache) FindByPath(path string) (Snapshot, bool) {
	matches := c.ByPath(path)
	if len(matches) == 0 {
		return Snapshot{}, false
	}
	return matches[0], true
}

// ByPath returns every session open on path, oldest first, without dump text.
func (c *Cache) ByPath(path string) []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Snapshot
	for _, s := range c.sessions {
		if s.Path == path {
			out = append(out, s.snapshot(false))
		}
	}
	sortSnapshots(out)
	return out
}

// List returns all sessions, oldest first, without dump text.
func (c *Cache) List() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Snapshot, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.snapshot(false))
	}
	sortSnapshots(out)
	return out
}

// Len returns the number of open sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// GeneratingCount returns how many sessions have a generation in flight.
func (c *Cache) GeneratingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, s := range c.sessions {
		if s.generating {
			n++
		}
	}
	return n
}

// Begin is the Idle -> Generating transition. It returns the cached
// snapshot and reuse=true when opts match a non-empty cached dump, and
// ErrAlreadyRunning when a generation is already in flight. cancel is
// invoked if the session is closed before the generation finishes.
func (c *Cache) Begin(id string, opts hexdump.Options, cancel context.CancelFunc) (Ticket, Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return Ticket{}, Snapshot{}, false, ErrNotFound
	}
	if s.generating {
		return Ticket{}, s.snapshot(true), false, hexdump.ErrAlreadyRunning
	}
	if !s.NeedsRegeneration(opts) {
		return Ticket{}, s.snapshot(true), true, nil
	}

	s.generating = true
	s.cancel = cancel
	return Ticket{id: id, epoch: s.epoch}, s.snapshot(true), false, nil
}

// Update replaces options and dump text together. It is the success half of
// Begin; a ticket made stale by Invalidate or Close is rejected with
// ErrSuperseded and the session is left as it was.
func (c *Cache) Update(t Ticket, opts hexdump.Options, dumpText string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[t.id]
	if !ok {
		return Snapshot{}, ErrSuperseded
	}
	if s.epoch != t.epoch {
		s.generating = false
		s.cancel = nil
		return s.snapshot(true), ErrSuperseded
	}
	s.Options = opts
	s.DumpText = dumpText
	s.UpdatedAt = c.now().UTC()
	s.generating = false
	s.cancel = nil
	return s.snapshot(true), nil
}

// Abort is the failure half of Begin: it returns the session to Idle with
// its options and dump untouched.
func (c *Cache) Abort(t Ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[t.id]; ok {
		s.generating = false
		s.cancel = nil
	}
}

// MarkActivated records the first activation and reports whether this call
// was it.
func (c *Cache) MarkActivated(id string) (first bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if s.activated {
		return false, nil
	}
	s.activated = true
	return true, nil
}

// Invalidate drops the cached dump, keeping options, so the next request
// regenerates. A generation in flight is superseded.
func (c *Cache) Invalidate(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.DumpText = ""
	s.epoch++
	return nil
}

// Close removes the session and cancels its in-flight generation, if any.
func (c *Cache) Close(id string) (Snapshot, error) {
	c.mu.Lock()
	s, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	delete(c.sessions, id)
	s.epoch++
	cancel := s.cancel
	snap := s.snapshot(false)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return snap, nil
}

func sortSnapshots(s []Snapshot) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].OpenedAt.Equal(s[j].OpenedAt) {
			return s[i].ID < s[j].ID
		}
		return s[i].OpenedAt.Before(s[j].OpenedAt)
	})
}
