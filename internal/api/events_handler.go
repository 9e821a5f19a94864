package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/hexview/internal/events"
)

const keepAliveInterval = 15 * time.Second

// handleEvents handles GET /events as a server-sent event stream.
// ?session=<id> narrows the stream to one document and ?type=a,b to the
// listed event types. A Last-Event-ID that can no longer be replayed is
// answered with a stream.reset event before the replay.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	filters := eventFilters(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Subscribe before replaying so nothing published in between is lost.
	ch, cancel := s.events.Subscribe(filters...)
	defer cancel()

	lastID := parseLastEventID(r.Header.Get("Last-Event-ID"))
	replay, gap := s.events.Since(lastID, filters...)
	if gap {
		s.logger.Info("event stream resumed past retained history", "last_event_id", lastID)
		if err := writeReset(w, lastID); err != nil {
			return
		}
		lastID = 0
	}
	for _, ev := range replay {
		if err := writeSSE(w, ev); err != nil {
			return
		}
		lastID = ev.ID
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.ID <= lastID {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func eventFilters(r *http.Request) []events.Filter {
	var filters []events.Filter
	if id := r.URL.Query().Get("session"); id != "" {
		filters = append(filters, events.ForSession(id))
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		var types []string
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		filters = append(filters, events.OfType(types...))
	}
	return filters
}

func parseLastEventID(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// writeReset sends a stream.reset without an id line, so the client keeps
// its Last-Event-ID until the replay that follows advances it.
func writeReset(w io.Writer, lastID int64) error {
	data, err := json.Marshal(map[string]int64{"last_event_id": lastID})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", events.StreamReset, data)
	return err
}

func writeSSE(w io.Writer, ev events.Event) error {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\n", ev.ID)
	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	// Payload is single-line JSON.
	fmt.Fprintf(&b, "data: %s\n\n", ev.Data)
	_, err := io.WriteString(w, b.String())
	return err
}
