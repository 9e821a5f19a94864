// Package hexdump turns files into textual hex dumps by running xxd,
// optionally piped through sed to drop the offset column.
package hexdump

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/hexview/internal/log"
)

const (
	DefaultXXDPath = "xxd"
	DefaultSedPath = "sed"

	// DefaultTimeout bounds a single generation.
	DefaultTimeout = 30 * time.Second

	// stripOffsetsExpr removes the leading "00000010: " address column.
	stripOffsetsExpr = `s/^[0-9a-fA-F]*:[[:space:]]*//`
)

// Generator builds xxd invocations from Options and runs them.
type Generator struct {
	runner  Runner
	xxdPath string
	sedPath string
	timeout time.Duration
	logger  *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithRunner overrides the process runner.
func WithRunner(r Runner) GeneratorOption {
	return func(g *Generator) { g.runner = r }
}

// WithXXDPath sets the xxd executable.
func WithXXDPath(path string) GeneratorOption {
	return func(g *Generator) {
		if path != "" {
			g.xxdPath = path
		}
	}
}

// WithSedPath sets the sed executable used when stripping offsets.
func WithSedPath(path string) GeneratorOption {
	return func(g *Generator) {
		if path != "" {
			g.sedPath = path
		}
	}
}

// WithTimeout bounds each generation. Zero or negative disables the bound.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates a Generator with defaults applied.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		xxdPath: DefaultXXDPath,
		sedPath: DefaultSedPath,
		timeout: DefaultTimeout,
		logger:  log.WithComponent("hexdump"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.runner == nil {
		g.runner = NewExecRunner(defaultKillGrace)
	}
	return g
}

// Stages returns the pipeline Generate would run for path and opts.
func (g *Generator) Stages(path string, opts Options) []Stage {
	opts = opts.Normalize()
	stages := []Stage{{Name: g.xxdPath, Args: opts.Args(path)}}
	if opts.StripOffsets {
		stages = append(stages, Stage{Name: g.sedPath, Args: []string{stripOffsetsExpr}})
	}
	return stages
}

// Generate spawns one pipeline for path and returns its full stdout.
// Out-of-range options are replaced by defaults before the call.
func (g *Generator) Generate(ctx context.Context, path string, opts Options) (string, error) {
	if path == "" {
		return "", fmt.Errorf("generate: path is empty")
	}
	if opts.Clamped() {
		g.logger.Debug("options clamped to defaults", "requested", opts, "path", path)
	}
	opts = opts.Normalize()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := g.runner.Run(ctx, g.Stages(path, opts)...)
	if err != nil {
		g.logger.Warn("hex dump failed",
			"path", path,
			"kind", KindOf(err),
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	g.logger.Debug("hex dump generated",
		"path", path,
		"bytes", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return string(out), nil
}
