package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLockTarget(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLockFileDryRunWritesNothing(t *testing.T) {
	path := writeLockTarget(t, "service:\n  name: x\n")

	report, err := LockFile(path, true)
	if err != nil {
		t.Fatalf("LockFile() failed: %v", err)
	}
	if report.Written {
		t.Fatal("report.Written = true, want false in dry-run")
	}
	if report.Lock.File != "config.yaml" || len(report.Lock.BLAKE3) != 64 || report.Lock.Size != 19 {
		t.Fatalf("lock = %+v", report.Lock)
	}
	if _, err := os.Stat(report.ChecksumPath); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestLockFileThenVerify(t *testing.T) {
	path := writeLockTarget(t, "service:\n  name: x\n")

	report, err := LockFile(path, false)
	if err != nil {
		t.Fatalf("LockFile() failed: %v", err)
	}
	if !report.Written || report.Previous != "" {
		t.Fatalf("report = %+v", report)
	}

	lock, err := ReadLock(filepath.Dir(path))
	if err != nil || lock == nil {
		t.Fatalf("ReadLock() = %v, %v", lock, err)
	}
	if err := lock.Verify(path); err != nil {
		t.Errorf("Verify() on untouched file failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("service:\n  name: y\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := lock.Verify(path); err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("Verify() after edit = %v, want hash mismatch", err)
	}
}

func TestLockFileReportsReplacedLock(t *testing.T) {
	path := writeLockTarget(t, "a: 1\n")
	first, err := LockFile(path, false)
	if err != nil {
		t.Fatal(err)
	}

	again, err := LockFile(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if again.Previous != first.Lock.BLAKE3 || again.Changed() {
		t.Fatalf("relock of same content: %+v", again)
	}

	if err := os.WriteFile(path, []byte("a: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	changed, err := LockFile(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if !changed.Changed() {
		t.Fatal("Changed() = false after edit")
	}
}

func TestVerifyRejectsOtherFile(t *testing.T) {
	path := writeLockTarget(t, "a: 1\n")
	if _, err := LockFile(path, false); err != nil {
		t.Fatal(err)
	}
	lock, _ := ReadLock(filepath.Dir(path))

	other := filepath.Join(filepath.Dir(path), "other.yaml")
	if err := os.WriteFile(other, []byte("a: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := lock.Verify(other); err == nil || !strings.Contains(err.Error(), "locks config.yaml") {
		t.Fatalf("Verify(other) = %v", err)
	}
}

func TestReadLock(t *testing.T) {
	dir := t.TempDir()
	lock, err := ReadLock(dir)
	if err != nil || lock != nil {
		t.Fatalf("ReadLock(unlocked) = %v, %v", lock, err)
	}

	write := func(content string) {
		if err := os.WriteFile(filepath.Join(dir, ChecksumsFile), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	write("version: 1\nhashes: {}\n")
	if _, err := ReadLock(dir); err == nil {
		t.Error("ReadLock() accepted version 1")
	}
	write("version: 2\nfile: config.yaml\n")
	if _, err := ReadLock(dir); err == nil {
		t.Error("ReadLock() accepted a lock without a digest")
	}
	write("version: [\n")
	if _, err := ReadLock(dir); err == nil {
		t.Error("ReadLock() accepted malformed YAML")
	}
}

func TestHashFileIsStable(t *testing.T) {
	path := writeLockTarget(t, "abc")
	a, n, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	b, _, _ := HashFile(path)
	if a != b || len(a) != 64 || n != 3 {
		t.Fatalf("hash = %q / %q, n = %d", a, b, n)
	}
}
