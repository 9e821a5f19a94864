package viewer

import (
	"context"

	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/history"
)

//go:generate mockgen -destination=mocks/mock_viewer.go -package=mocks github.com/mattjoyce/hexview/internal/viewer Generator,Recorder,Watcher

// Generator produces the hex dump text for a file.
type Generator interface {
	Generate(ctx context.Context, path string, opts hexdump.Options) (string, error)
}

// Recorder persists one row per spawned generation.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (string, error)
}

// Watcher reports on-disk changes to open files.
type Watcher interface {
	Watch(path string) error
	Unwatch(path string)
}
