// Package history records every spawned hex dump generation in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/hexview/internal/hexdump"
)

const maxStderrBytes = 16 * 1024

// Status is the outcome of a generation.
type Status string

const (
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusSuperseded Status = "superseded"
)

// Entry is one row of generation_log.
type Entry struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Path        string          `json:"path"`
	Options     hexdump.Options `json:"options"`
	Status      Status          `json:"status"`
	ErrorKind   hexdump.Kind    `json:"error_kind,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Stderr      string          `json:"stderr,omitempty"`
	OutputBytes int             `json:"output_bytes"`
	Duration    time.Duration   `json:"duration_ns"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Store reads and writes generation_log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record inserts e, assigning an ID and timestamp when unset.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	if e.SessionID == "" {
		return "", fmt.Errorf("session_id is empty")
	}
	if e.Path == "" {
		return "", fmt.Errorf("path is empty")
	}
	if e.Status == "" {
		return "", fmt.Errorf("status is empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if len(e.Stderr) > maxStderrBytes {
		e.Stderr = e.Stderr[:maxStderrBytes]
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO generation_log(
  id, session_id, path, row_bytes, col_bytes, start_offset, strip_offsets,
  status, error_kind, last_error, stderr, output_bytes, duration_ms, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		e.ID, e.SessionID, e.Path,
		e.Options.RowBytes, e.Options.ColBytes, e.Options.Offset, boolToInt(e.Options.StripOffsets),
		string(e.Status), nullString(string(e.ErrorKind)), nullString(e.LastError), nullString(e.Stderr),
		e.OutputBytes, e.Duration.Milliseconds(), e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("record generation: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, path, row_bytes, col_bytes, start_offset, strip_offsets,
       status, error_kind, last_error, stderr, output_bytes, duration_ms, created_at
FROM generation_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query generation log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			strip      int
			statusS    string
			errorKind  sql.NullString
			lastError  sql.NullString
			stderr     sql.NullString
			durationMS int64
			createdAtS string
		)
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.Path, &e.Options.RowBytes, &e.Options.ColBytes, &e.Options.Offset, &strip,
			&statusS, &errorKind, &lastError, &stderr, &e.OutputBytes, &durationMS, &createdAtS,
		); err != nil {
			return nil, fmt.Errorf("scan generation log: %w", err)
		}
		e.Options.StripOffsets = strip != 0
		e.Status = Status(statusS)
		e.ErrorKind = hexdump.Kind(errorKind.String)
		e.LastError = lastError.String
		e.Stderr = stderr.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		createdAt, err := time.Parse(time.RFC3339Nano, createdAtS)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		e.CreatedAt = createdAt
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generation log: %w", err)
	}
	return out, nil
}

// Prune deletes entries older than retention and returns how many went.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention).UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM generation_log WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune generation log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RunPruner prunes once immediately and then every interval until ctx is
// done.
func (s *Store) RunPruner(ctx context.Context, interval, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 || interval <= 0 {
		return
	}
	prune := func() {
		n, err := s.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("failed to prune history", "error", err)
		case n > 0:
			logger.Info("pruned history", "rows", n)
		}
	}

	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			prune()
		case <-ctx.Done():
			return
		}
	}
}
