package api

import (
	"time"

	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/history"
	"github.com/mattjoyce/hexview/internal/session"
)

// OpenRequest is the JSON body for POST /open.
type OpenRequest struct {
	Paths []string `json:"paths"`
}

// OpenResult reports the outcome for one requested path.
type OpenResult struct {
	Path      string `json:"path"`
	SessionID string `json:"session_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Existed   bool   `json:"existed,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OpenResponse is returned by POST /open. Focused is the last file opened.
type OpenResponse struct {
	Results []OpenResult `json:"results"`
	Focused string       `json:"focused,omitempty"`
}

// DumpRequest is the JSON body for POST /sessions/{id}/dump. Omitted
// fields keep the session's current value.
type DumpRequest struct {
	RowBytes     *int   `json:"row_bytes,omitempty"`
	ColBytes     *int   `json:"col_bytes,omitempty"`
	Offset       *int64 `json:"offset,omitempty"`
	StripOffsets *bool  `json:"strip_offsets,omitempty"`
}

func (r DumpRequest) apply(base hexdump.Options) hexdump.Options {
	if r.RowBytes != nil {
		base.RowBytes = *r.RowBytes
	}
	if r.ColBytes != nil {
		base.ColBytes = *r.ColBytes
	}
	if r.Offset != nil {
		base.Offset = *r.Offset
	}
	if r.StripOffsets != nil {
		base.StripOffsets = *r.StripOffsets
	}
	return base
}

// SessionResponse wraps one session.
type SessionResponse struct {
	Session session.Snapshot `json:"session"`
}

// SessionListResponse is returned by GET /sessions.
type SessionListResponse struct {
	Sessions []session.Snapshot `json:"sessions"`
}

// HistoryResponse is returned by GET /history.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string       `json:"error"`
	Kind  hexdump.Kind `json:"kind,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	OpenSessions  int       `json:"open_sessions"`
	Generating    int       `json:"generating"`
	Subscribers   int       `json:"event_subscribers"`
	DroppedEvents int64     `json:"dropped_events"`
	CheckedAt     time.Time `json:"checked_at"`
}
