package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/hexview/internal/config"
	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/history"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func runCLIForTest(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return captureOutputWithExitCode(t, func() int { return runCLI(args) })
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

// writeTestConfig creates a config dir with a files/ workspace and a
// stand-in xxd that echoes its arguments.
func writeTestConfig(t *testing.T) (dir string, configFile string) {
	t.Helper()
	dir = t.TempDir()

	if err := os.MkdirAll(filepath.Join(dir, "files"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "files", "hello.bin"), []byte("Hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	xxd := filepath.Join(dir, "fake-xxd")
	if err := os.WriteFile(xxd, []byte("#!/bin/sh\necho \"$@\"\n"), 0o755); err != nil {
		t.Fatalf("write xxd: %v", err)
	}

	configFile = filepath.Join(dir, "config.yaml")
	content := `service:
  log_level: error
state:
  path: ./data/hexview.db
workspace_dir: ./files
hex:
  xxd_path: ` + xxd + `
  sed_path: /bin/sed
ui:
  log_file: ./data/hexview.log
`
	if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir, configFile
}

func TestRunCLIUnknownCommand(t *testing.T) {
	code, stdout, stderr := runCLIForTest(t, "bogus")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Unknown command: bogus") {
		t.Fatalf("stderr = %q", stderr)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Fatalf("stdout missing usage: %q", stdout)
	}
}

func TestRunCLINoArgs(t *testing.T) {
	code, stdout, _ := runCLIForTest(t)
	if code != 1 || !strings.Contains(stdout, "hexview <command>") {
		t.Fatalf("code=%d stdout=%q", code, stdout)
	}
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef0123", "2026-01-02T03:04:05+02:00")

	code, stdout, stderr := runCLIForTest(t, "version", "--json")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%q", code, stderr)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, stdout)
	}
	if info.Version != "1.2.3" {
		t.Errorf("version = %q", info.Version)
	}
	if info.Commit != "0123456789ab" {
		t.Errorf("commit = %q", info.Commit)
	}
	if info.BuildTime != "2026-01-02T01:04:05Z" {
		t.Errorf("build_time = %q", info.BuildTime)
	}
}

func TestRunVersionRejectsArgs(t *testing.T) {
	code, _, stderr := runCLIForTest(t, "version", "extra")
	if code != 1 || !strings.Contains(stderr, "Usage: hexview version") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestNormalizeBuildTimeUTC(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"", "", false},
		{"unknown", "", false},
		{"not-a-time", "", false},
		{"2026-03-01T10:00:00Z", "2026-03-01T10:00:00Z", true},
	}
	for _, tt := range tests {
		got, ok := normalizeBuildTimeUTC(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("normalizeBuildTimeUTC(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDumpUsesConfigDefaultsAndFlags(t *testing.T) {
	_, configFile := writeTestConfig(t)

	code, stdout, stderr := runCLIForTest(t, "dump", "--config", configFile, "hello.bin")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%q", code, stderr)
	}
	if !strings.HasPrefix(stdout, "-c 16 -g 2 -s 0 ") || !strings.HasSuffix(strings.TrimSpace(stdout), "hello.bin") {
		t.Fatalf("stdout = %q", stdout)
	}

	code, stdout, stderr = runCLIForTest(t, "dump", "--config", configFile, "-c", "8", "-s", "3", "hello.bin")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%q", code, stderr)
	}
	if !strings.HasPrefix(stdout, "-c 8 -g 2 -s 3 ") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestDumpClampsInvalidFlags(t *testing.T) {
	_, configFile := writeTestConfig(t)

	code, stdout, stderr := runCLIForTest(t, "dump", "--config", configFile, "-c", "0", "-g", "999", "hello.bin")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%q", code, stderr)
	}
	if !strings.HasPrefix(stdout, "-c 16 -g 2 -s 0 ") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestDumpRejectsDirectory(t *testing.T) {
	dir, configFile := writeTestConfig(t)
	if err := os.MkdirAll(filepath.Join(dir, "files", "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	code, _, stderr := runCLIForTest(t, "dump", "--config", configFile, "sub")
	if code != 1 || !strings.Contains(stderr, "directory") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestDumpMissingExecutable(t *testing.T) {
	dir, configFile := writeTestConfig(t)
	if err := os.Remove(filepath.Join(dir, "fake-xxd")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	code, stdout, stderr := runCLIForTest(t, "dump", "--config", configFile, "hello.bin")
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if stdout != "" {
		t.Fatalf("stdout = %q, want empty", stdout)
	}
	if !strings.Contains(stderr, string(hexdump.KindSpawnFailed)) {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestConfigLockThenTamper(t *testing.T) {
	dir, configFile := writeTestConfig(t)

	code, stdout, stderr := runCLIForTest(t, "config", "lock", "--config", dir)
	if code != 0 {
		t.Fatalf("lock exit = %d, stderr=%q", code, stderr)
	}
	if !strings.Contains(stdout, config.ChecksumsFile) {
		t.Fatalf("stdout = %q", stdout)
	}

	code, _, stderr = runCLIForTest(t, "config", "check", "--config", dir)
	if code != 0 {
		t.Fatalf("check exit = %d, stderr=%q", code, stderr)
	}

	f, err := os.OpenFile(configFile, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString("# tampered\n")
	_ = f.Close()

	code, _, stderr = runCLIForTest(t, "config", "check", "--config", dir)
	if code != 1 || !strings.Contains(stderr, "hash mismatch") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestConfigLockDryRunWritesNothing(t *testing.T) {
	dir, _ := writeTestConfig(t)

	code, stdout, _ := runCLIForTest(t, "config", "lock", "--config", dir, "--dry-run", "-v")
	if code != 0 || !strings.Contains(stdout, "Dry-run") || !strings.Contains(stdout, "HASH   config.yaml") {
		t.Fatalf("code=%d stdout=%q", code, stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, config.ChecksumsFile)); !os.IsNotExist(err) {
		t.Fatalf("checksums written on dry run: %v", err)
	}
}

func TestConfigRelockReportsPreviousHash(t *testing.T) {
	dir, configFile := writeTestConfig(t)

	if code, _, stderr := runCLIForTest(t, "config", "lock", "--config", dir); code != 0 {
		t.Fatalf("lock exit = %d, stderr=%q", code, stderr)
	}
	code, stdout, _ := runCLIForTest(t, "config", "lock", "--config", dir, "-v")
	if code != 0 || !strings.Contains(stdout, "SAME") {
		t.Fatalf("code=%d stdout=%q", code, stdout)
	}

	f, err := os.OpenFile(configFile, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = f.WriteString("# edited\n")
	_ = f.Close()

	code, stdout, _ = runCLIForTest(t, "config", "lock", "--config", dir, "-v")
	if code != 0 || !strings.Contains(stdout, "WAS") {
		t.Fatalf("code=%d stdout=%q", code, stdout)
	}
	code, _, stderr := runCLIForTest(t, "config", "check", "--config", dir)
	if code != 0 {
		t.Fatalf("check after relock exit = %d, stderr=%q", code, stderr)
	}
}

func TestConfigGetSet(t *testing.T) {
	_, configFile := writeTestConfig(t)

	code, stdout, stderr := runCLIForTest(t, "config", "get", "--config", configFile, "hex.defaults.row_bytes")
	if code != 0 || strings.TrimSpace(stdout) != "16" {
		t.Fatalf("get: code=%d stdout=%q stderr=%q", code, stdout, stderr)
	}

	code, _, stderr = runCLIForTest(t, "config", "set", "--config", configFile, "hex.defaults.row_bytes=8")
	if code != 1 || !strings.Contains(stderr, "--dry-run or --apply") {
		t.Fatalf("set without mode: code=%d stderr=%q", code, stderr)
	}

	code, _, stderr = runCLIForTest(t, "config", "set", "--config", configFile, "hex.defaults.row_bytes=8", "--apply")
	if code != 0 {
		t.Fatalf("set: code=%d stderr=%q", code, stderr)
	}

	code, stdout, _ = runCLIForTest(t, "config", "get", "--config", configFile, "hex.defaults.row_bytes")
	if code != 0 || strings.TrimSpace(stdout) != "8" {
		t.Fatalf("get after set: code=%d stdout=%q", code, stdout)
	}
}

func TestConfigSetRollsBackInvalidValue(t *testing.T) {
	_, configFile := writeTestConfig(t)
	before, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	code, _, stderr := runCLIForTest(t, "config", "set", "--config", configFile, "hex.defaults.row_bytes=1000", "--apply")
	if code != 1 || !strings.Contains(stderr, "row_bytes") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}

	after, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(after) != string(before) {
		t.Fatalf("config not rolled back:\n%s", after)
	}
}

func TestDoctorJSON(t *testing.T) {
	_, configFile := writeTestConfig(t)

	code, stdout, stderr := runCLIForTest(t, "doctor", "--config", configFile, "--json")
	if code != 0 {
		t.Fatalf("exit = %d, stdout=%q stderr=%q", code, stdout, stderr)
	}
	var result struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, stdout)
	}
	if !result.Valid {
		t.Fatalf("result not valid: %s", stdout)
	}
}

func TestHistoryEmpty(t *testing.T) {
	_, configFile := writeTestConfig(t)

	code, stdout, stderr := runCLIForTest(t, "history", "--config", configFile)
	if code != 0 || !strings.Contains(stdout, "No generations recorded.") {
		t.Fatalf("code=%d stdout=%q stderr=%q", code, stdout, stderr)
	}
}

func TestFormatHistory(t *testing.T) {
	out := formatHistory([]history.Entry{
		{
			Path:        "/work/a.bin",
			Options:     hexdump.Options{RowBytes: 8, ColBytes: 2, Offset: 4, StripOffsets: true},
			Status:      history.StatusSucceeded,
			OutputBytes: 120,
			Duration:    15 * time.Millisecond,
			CreatedAt:   time.Now(),
		},
		{
			Path:      "/work/b.bin",
			Options:   hexdump.DefaultOptions(),
			Status:    history.StatusFailed,
			ErrorKind: hexdump.KindSpawnFailed,
			CreatedAt: time.Now(),
		},
	})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "8/2+4 s") || !strings.Contains(lines[1], "succeeded") || !strings.HasSuffix(lines[1], "/work/a.bin") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "spawn_failed") || !strings.Contains(lines[2], "16/2+0") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestHexDefaultsClampAndStrip(t *testing.T) {
	cfg := config.Defaults()
	cfg.Hex.Defaults.RowBytes = 500
	cfg.Hex.StripOffsets = true

	got := hexDefaults(cfg)
	want := hexdump.Options{RowBytes: 16, ColBytes: 2, Offset: 0, StripOffsets: true}
	if got != want {
		t.Fatalf("hexDefaults = %+v, want %+v", got, want)
	}
}

func TestGetPIDLockPath(t *testing.T) {
	cfg := config.Defaults()
	cfg.State.Path = "/var/lib/hexview/state.db"
	if got := getPIDLockPath(cfg); got != "/var/lib/hexview/state.pid" {
		t.Fatalf("getPIDLockPath = %q", got)
	}
}

func TestServeRequiresAPI(t *testing.T) {
	_, configFile := writeTestConfig(t)

	code, _, stderr := runCLIForTest(t, "serve", "--config", configFile)
	if code != 1 || !strings.Contains(stderr, "api.enabled") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestOpenRequiresPaths(t *testing.T) {
	code, _, stderr := runCLIForTest(t, "open")
	if code != 1 || !strings.Contains(stderr, "Usage: hexview open") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestWatchRequiresAPIKey(t *testing.T) {
	_, configFile := writeTestConfig(t)

	code, _, stderr := runCLIForTest(t, "watch", "--config", configFile)
	if code != 1 || !strings.Contains(stderr, "No API key") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{listen: ":8088", want: "http://localhost:8088"},
		{listen: "0.0.0.0:9000", want: "http://localhost:9000"},
		{listen: "127.0.0.1:8088", want: "http://127.0.0.1:8088"},
		{listen: "[::]:8088", want: "http://localhost:8088"},
		{listen: "hexview.local", want: "http://hexview.local"},
	}
	for _, tt := range tests {
		cfg := config.Defaults()
		cfg.API.Listen = tt.listen
		if got := serverURL(cfg); got != tt.want {
			t.Errorf("serverURL(%q) = %q, want %q", tt.listen, got, tt.want)
		}
	}
}
