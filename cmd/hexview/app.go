package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/hexview/internal/config"
	"github.com/mattjoyce/hexview/internal/events"
	"github.com/mattjoyce/hexview/internal/filewatch"
	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/history"
	"github.com/mattjoyce/hexview/internal/log"
	"github.com/mattjoyce/hexview/internal/storage"
	"github.com/mattjoyce/hexview/internal/viewer"
	"github.com/mattjoyce/hexview/internal/workspace"
)

// app is the wired component graph shared by serve and open.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	hub     *events.Hub
	history *history.Store
	viewer  *viewer.Manager
	watcher *filewatch.Watcher
}

func newGenerator(cfg *config.Config) *hexdump.Generator {
	return hexdump.NewGenerator(
		hexdump.WithRunner(hexdump.NewExecRunner(cfg.Hex.KillGrace)),
		hexdump.WithXXDPath(cfg.Hex.XXDPath),
		hexdump.WithSedPath(cfg.Hex.SedPath),
		hexdump.WithTimeout(cfg.Hex.Timeout),
		hexdump.WithLogger(log.WithComponent("hexdump")),
	)
}

func hexDefaults(cfg *config.Config) hexdump.Options {
	return hexdump.Options{
		RowBytes:     cfg.Hex.Defaults.RowBytes,
		ColBytes:     cfg.Hex.Defaults.ColBytes,
		Offset:       cfg.Hex.Defaults.Offset,
		StripOffsets: cfg.Hex.StripOffsets,
	}.Normalize()
}

func newResolver(cfg *config.Config) (*workspace.Resolver, error) {
	return workspace.NewResolver(cfg.ResolvePath(cfg.WorkspaceDir), "")
}

// newApp opens the state database and wires the viewer, history and
// watcher. Close must be called when done.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	statePath := cfg.ResolvePath(cfg.State.Path)
	db, err := storage.OpenSQLite(ctx, statePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", statePath, err)
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		hub:     events.NewHub(256),
		history: history.NewStore(db),
	}

	a.viewer = viewer.New(newGenerator(cfg), resolver,
		viewer.WithDefaults(hexDefaults(cfg)),
		viewer.WithRecorder(a.history),
		viewer.WithHub(a.hub),
		viewer.WithLogger(log.WithComponent("viewer")),
	)

	if cfg.Watch.Enabled {
		w, err := filewatch.New(func(path string) { a.viewer.Invalidate(path) },
			filewatch.WithDebounce(cfg.Watch.Debounce),
			filewatch.WithLogger(log.WithComponent("filewatch")),
		)
		if err != nil {
			logger.Warn("file watching disabled", "error", err)
		} else {
			a.watcher = w
			a.viewer.SetWatcher(w)
		}
	}

	return a, nil
}

// pruneInterval is how often history older than history.retention is removed.
const pruneInterval = time.Hour

// start runs the file watcher and the history pruner until ctx is done.
func (a *app) start(ctx context.Context, errCh chan<- error, logger *slog.Logger) {
	go a.history.RunPruner(ctx, pruneInterval, a.cfg.History.Retention, logger)

	if a.watcher == nil {
		return
	}
	go func() {
		if err := a.watcher.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("filewatch: %w", err)
		}
	}()
}

func (a *app) Close() error {
	a.viewer.CloseAll()
	return a.db.Close()
}
