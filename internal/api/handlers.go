package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/session"
	"github.com/mattjoyce/hexview/internal/workspace"
)

const maxHistoryLimit = 500

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	open, generating := s.viewer.Stats()
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		OpenSessions:  open,
		Generating:    generating,
		Subscribers:   s.events.Subscribers(),
		DroppedEvents: s.events.Dropped(),
		CheckedAt:     time.Now().UTC(),
	})
}

// handleOpen handles POST /open. Directories are skipped; a path that is
// already open reports the existing session.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Paths) == 0 {
		s.writeError(w, http.StatusBadRequest, "paths must be non-empty")
		return
	}

	resp := OpenResponse{Results: make([]OpenResult, 0, len(req.Paths))}
	for _, p := range req.Paths {
		snap, existed, err := s.viewer.Open(r.Context(), p)
		switch {
		case errors.Is(err, workspace.ErrIsDirectory):
			resp.Results = append(resp.Results, OpenResult{Path: p, Skipped: true, Error: err.Error()})
		case err != nil:
			resp.Results = append(resp.Results, OpenResult{Path: p, Error: err.Error()})
		default:
			resp.Results = append(resp.Results, OpenResult{
				Path:      snap.Path,
				SessionID: snap.ID,
				Title:     snap.Title,
				Existed:   existed,
			})
			resp.Focused = snap.ID
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleListSessions handles GET /sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SessionListResponse{Sessions: s.viewer.List()})
}

// handleGetSession handles GET /sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.viewer.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeViewerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Session: snap})
}

// handleActivate handles POST /sessions/{id}/activate.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	snap, err := s.viewer.Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeViewerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Session: snap})
}

// handleDump handles POST /sessions/{id}/dump.
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	current, err := s.viewer.Get(id)
	if err != nil {
		s.writeViewerError(w, err)
		return
	}

	snap, err := s.viewer.Update(r.Context(), id, req.apply(current.Options))
	if err != nil {
		s.writeViewerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, SessionResponse{Session: snap})
}

// handleCloseSession handles DELETE /sessions/{id}.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.viewer.Close(chi.URLParam(r, "id")); err != nil {
		s.writeViewerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHistory handles GET /history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "history is not enabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	respondJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// statusForError maps viewer and generator errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrIsDirectory):
		return http.StatusBadRequest
	}

	switch hexdump.KindOf(err) {
	case hexdump.KindAlreadyRunning:
		return http.StatusConflict
	case hexdump.KindSpawnFailed:
		return http.StatusServiceUnavailable
	case hexdump.KindProcessError:
		return http.StatusBadGateway
	case hexdump.KindTimeout:
		return http.StatusGatewayTimeout
	case hexdump.KindCanceled:
		return http.StatusConflict
	case hexdump.KindInvalidOptions:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeViewerError(w http.ResponseWriter, err error) {
	respondJSON(w, statusForError(err), ErrorResponse{
		Error: err.Error(),
		Kind:  hexdump.KindOf(err),
	})
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
