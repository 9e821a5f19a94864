package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumsFile holds the lock for the config file in the same directory.
const ChecksumsFile = ".checksums"

const lockVersion = 2

// Lock pins the exact content of one config file. While it exists, Load
// refuses a config whose BLAKE3 digest or size differs.
type Lock struct {
	Version  int       `yaml:"version"`
	File     string    `yaml:"file"`
	BLAKE3   string    `yaml:"blake3"`
	Size     int64     `yaml:"size"`
	LockedAt time.Time `yaml:"locked_at"`
}

// LockReport describes what LockFile wrote, or would write on a dry run.
type LockReport struct {
	ConfigPath   string
	ChecksumPath string
	Lock         Lock
	// Previous is the digest of the lock being replaced, if any.
	Previous string
	Written  bool
}

// Changed reports whether the new lock pins different content.
func (r *LockReport) Changed() bool {
	return r.Previous != "" && r.Previous != r.Lock.BLAKE3
}

// HashFile streams path through BLAKE3 and returns the hex digest and the
// number of bytes read.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// LockFile pins configPath by writing .checksums next to it.
func LockFile(configPath string, dryRun bool) (*LockReport, error) {
	digest, size, err := HashFile(configPath)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(configPath)
	report := &LockReport{
		ConfigPath:   configPath,
		ChecksumPath: filepath.Join(dir, ChecksumsFile),
		Lock: Lock{
			Version:  lockVersion,
			File:     filepath.Base(configPath),
			BLAKE3:   digest,
			Size:     size,
			LockedAt: time.Now().UTC().Truncate(time.Second),
		},
	}
	if prev, err := ReadLock(dir); err == nil && prev != nil {
		report.Previous = prev.BLAKE3
	}
	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(report.Lock)
	if err != nil {
		return nil, fmt.Errorf("encode lock: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", ChecksumsFile, err)
	}
	report.Written = true
	return report, nil
}

// ReadLock returns the lock in dir, or nil when the directory is unlocked.
func ReadLock(dir string) (*Lock, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ChecksumsFile, err)
	}

	var l Lock
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ChecksumsFile, err)
	}
	if l.Version != lockVersion {
		return nil, fmt.Errorf("unsupported %s version %d (run 'hexview config lock')", ChecksumsFile, l.Version)
	}
	if l.File == "" || l.BLAKE3 == "" {
		return nil, fmt.Errorf("%s is incomplete (run 'hexview config lock')", ChecksumsFile)
	}
	return &l, nil
}

// Verify checks that path still has the locked content.
func (l *Lock) Verify(path string) error {
	if base := filepath.Base(path); base != l.File {
		return fmt.Errorf("%s locks %s, not %s", ChecksumsFile, l.File, base)
	}
	digest, size, err := HashFile(path)
	if err != nil {
		return err
	}
	if digest != l.BLAKE3 || size != l.Size {
		return fmt.Errorf("hash mismatch for %s: locked %s (%d bytes), found %s (%d bytes)",
			l.File, l.BLAKE3, l.Size, digest, size)
	}
	return nil
}
