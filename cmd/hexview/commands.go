package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/hexview/internal/events"
	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/history"
	"github.com/mattjoyce/hexview/internal/log"
	"github.com/mattjoyce/hexview/internal/storage"
	"github.com/mattjoyce/hexview/internal/tui"
)

func runOpen(args []string) int {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	theme := fs.String("theme", "", "Starting theme (dark or light)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: hexview open [--config PATH] [--theme dark|light] <paths...>")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// The screen belongs to the TUI; logs go to a file.
	logPath := cfg.ResolvePath(cfg.UI.LogFile)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		return 1
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return 1
	}
	defer logFile.Close()
	log.SetupWriter(cfg.Service.LogLevel, logFile)
	logger := log.WithComponent("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer a.Close()

	errCh := make(chan error, 1)
	a.start(ctx, errCh, logger)
	go func() {
		if err := <-errCh; err != nil {
			logger.Error("component failed", "error", err)
		}
	}()

	hubEvents, unsubscribe := a.hub.Subscribe(events.OfType(tui.HandledEvents...))
	defer unsubscribe()

	themeName := cfg.UI.Theme
	if *theme != "" {
		themeName = *theme
	}

	m := tui.New(ctx, a.viewer, paths, tui.WithEvents(hubEvents), tui.WithTheme(themeName))
	p := tea.NewProgram(m)
	_, err = p.Run()
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runDump(args []string) int {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	rowBytes := fs.Int("c", 0, "Bytes per row (default from config)")
	colBytes := fs.Int("g", 0, "Bytes per column (default from config)")
	offset := fs.Int64("s", 0, "Start offset (default from config)")
	strip := fs.Bool("strip", false, "Strip the offset column")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: hexview dump [--config PATH] [-c N] [-g N] [-s N] [--strip] <path>")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.SetupWriter(cfg.Service.LogLevel, os.Stderr)

	opts := hexDefaults(cfg)
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "c":
			opts.RowBytes = *rowBytes
		case "g":
			opts.ColBytes = *colBytes
		case "s":
			opts.Offset = *offset
		case "strip":
			opts.StripOffsets = *strip
		}
	})

	resolver, err := newResolver(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	path, err := resolver.Resolve(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	text, err := newGenerator(cfg).Generate(ctx, path, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dump failed: %v\n", err)
		var he *hexdump.Error
		if errors.As(err, &he) && he.Stderr != "" {
			fmt.Fprint(os.Stderr, he.Stderr)
		}
		return 1
	}
	fmt.Print(text)
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Maximum number of entries")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.ResolvePath(cfg.State.Path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := history.NewStore(db).Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No generations recorded.")
		return 0
	}
	fmt.Print(formatHistory(entries))
	return 0
}

func formatHistory(entries []history.Entry) string {
	out := fmt.Sprintf("%-20s  %-14s  %-12s  %10s  %8s  %s\n", "CREATED", "STATUS", "OPTIONS", "BYTES", "MS", "PATH")
	for _, e := range entries {
		opts := fmt.Sprintf("%d/%d+%d", e.Options.RowBytes, e.Options.ColBytes, e.Options.Offset)
		if e.Options.StripOffsets {
			opts += " s"
		}
		status := string(e.Status)
		if e.ErrorKind != "" {
			status = string(e.ErrorKind)
		}
		out += fmt.Sprintf("%-20s  %-14s  %-12s  %10d  %8d  %s\n",
			e.CreatedAt.Local().Format(time.DateTime), status, opts,
			e.OutputBytes, e.Duration.Milliseconds(), e.Path)
	}
	return out
}
