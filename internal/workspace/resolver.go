// Package workspace resolves user-supplied file paths the way the editor
// shows them: "~/..." is relative to the home directory and anything
// relative is relative to the workspace directory.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrIsDirectory is returned when a path names a directory.
	ErrIsDirectory = errors.New("path is a directory")

	// ErrNotFound is returned when a path does not exist.
	ErrNotFound = errors.New("file not found")
)

// Resolver turns display paths into absolute file paths.
type Resolver struct {
	dir  string
	home string
	stat func(string) (os.FileInfo, error)
}

// NewResolver creates a Resolver rooted at dir. An empty dir means the
// current working directory; an empty home means os.UserHomeDir.
func NewResolver(dir, home string) (*Resolver, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		dir = wd
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace directory %q: %w", dir, err)
	}

	if home == "" {
		// Missing home only breaks "~" paths, which Resolve reports.
		home, _ = os.UserHomeDir()
	}

	return &Resolver{
		dir:  filepath.Clean(absDir),
		home: home,
		stat: os.Stat,
	}, nil
}

// Dir returns the workspace directory.
func (r *Resolver) Dir() string { return r.dir }

// Abs maps path to an absolute path without touching the filesystem.
func (r *Resolver) Abs(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}

	switch {
	case path == "~" || strings.HasPrefix(path, "~/"):
		if r.home == "" {
			return "", fmt.Errorf("cannot expand %q: home directory unknown", path)
		}
		return filepath.Join(r.home, strings.TrimPrefix(path, "~")), nil
	case filepath.IsAbs(path):
		return filepath.Clean(path), nil
	default:
		return filepath.Join(r.dir, path), nil
	}
}

// Resolve is Abs plus a check that the result is an existing regular file.
func (r *Resolver) Resolve(path string) (string, error) {
	abs, err := r.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := r.stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", abs, ErrNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s: %w", abs, ErrIsDirectory)
	}
	return abs, nil
}
