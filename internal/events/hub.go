// Package events is an in-memory pub/sub for session and dump lifecycle
// notifications. The API streams it as SSE; the TUI reads it directly.
package events

import (
	"encoding/json"
	"slices"
	"sync"
	"time"
)

// Event types published by the viewer.
const (
	SessionOpened      = "session.opened"
	SessionFocused     = "session.focused"
	SessionClosed      = "session.closed"
	SessionInvalidated = "session.invalidated"
	HexGenerating      = "hex.generating"
	HexUpdated         = "hex.updated"
	HexCached          = "hex.cached"
	HexFailed          = "hex.failed"
	HexRejected        = "hex.rejected"

	// StreamReset tells a resuming client that its Last-Event-ID cannot be
	// replayed, so any state it derived from the stream is stale.
	StreamReset = "stream.reset"
)

const subscriberBuffer = 128

// Event is one lifecycle notification. Session is empty for events that
// are not about a single document.
type Event struct {
	ID      int64     `json:"id"`
	Type    string    `json:"type"`
	Session string    `json:"session_id,omitempty"`
	At      time.Time `json:"at"`
	Data    []byte    `json:"data"` // JSON payload
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Filter selects the events a subscriber or replay sees. All filters must
// accept an event for it to be delivered.
type Filter func(Event) bool

// ForSession accepts events about the given session only.
func ForSession(id string) Filter {
	return func(e Event) bool { return e.Session == id }
}

// OfType accepts events whose type is one of types.
func OfType(types ...string) Filter {
	return func(e Event) bool { return slices.Contains(types, e.Type) }
}

func accept(filters []Filter, e Event) bool {
	for _, f := range filters {
		if !f(e) {
			return false
		}
	}
	return true
}

type subscriber struct {
	ch      chan Event
	filters []Filter
}

// Hub fans published events out to subscribers and keeps the most recent
// ones so a reconnecting client can catch up.
type Hub struct {
	mu       sync.Mutex
	lastID   int64
	capacity int
	recent   []Event // oldest first, at most capacity
	dropped  int64

	subs      map[int]*subscriber
	nextSubID int
}

// NewHub returns a hub that retains the last capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		capacity: capacity,
		recent:   make([]Event, 0, capacity),
		subs:     make(map[int]*subscriber),
	}
}

// Publish records an event about session and delivers it to every matching
// subscriber. A subscriber whose buffer is full misses the event rather than
// stalling the viewer; Dropped counts those misses.
func (h *Hub) Publish(eventType, session string, data any) Event {
	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{
		ID:      h.lastID,
		Type:    eventType,
		Session: session,
		At:      time.Now().UTC(),
		Data:    payload,
	}

	if len(h.recent) == h.capacity {
		h.recent = slices.Delete(h.recent, 0, 1)
	}
	h.recent = append(h.recent, ev)

	for _, s := range h.subs {
		if !accept(s.filters, ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped++
		}
	}
	return ev
}

// Subscribe registers a subscriber for events accepted by filters. The
// returned cancel func closes the channel and is safe to call twice.
func (h *Hub) Subscribe(filters ...Filter) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	s := &subscriber{ch: make(chan Event, subscriberBuffer), filters: filters}
	h.subs[id] = s

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(s.ch)
		}
	}
	return s.ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was not keeping up.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Since returns retained events with ID > lastID accepted by filters,
// oldest first. gap reports that the replay alone cannot bring the caller
// up to date: events after lastID were already evicted, or lastID is ahead
// of this hub because the process restarted and its sessions are gone.
// lastID 0 asks for everything retained and never reports a gap.
func (h *Hub) Since(lastID int64, filters ...Filter) (evs []Event, gap bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case lastID > h.lastID:
		// Everything retained is newer than what the caller saw.
		gap, lastID = true, 0
	case lastID > 0 && len(h.recent) > 0 && h.recent[0].ID > lastID+1:
		gap = true
	}
	for _, ev := range h.recent {
		if ev.ID > lastID && accept(filters, ev) {
			evs = append(evs, ev)
		}
	}
	return evs, gap
}
