package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/hexview/internal/config"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "open":
		if hasHelpFlag(args) {
			printOpenHelp()
			return 0
		}
		return runOpen(args)
	case "dump":
		if hasHelpFlag(args) {
			printDumpHelp()
			return 0
		}
		return runDump(args)
	case "history":
		if hasHelpFlag(args) {
			printHistoryHelp()
			return 0
		}
		return runHistory(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "config":
		return runConfigNoun(args)
	case "doctor":
		if hasHelpFlag(args) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: hexview version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("hexview %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// loadConfig loads configPath, the discovered config, or the defaults when
// nothing is found.
func loadConfig(configPath string) (*config.Config, error) {
	return config.LoadOrDefault(configPath)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`hexview - hex dumps of files through xxd

Usage:
  hexview <command> [flags]

Commands:
  open <paths...>   Open files in the terminal hex viewer
  dump <path>       Print a single dump to stdout
  serve             Run the HTTP API with file watching
  watch             Dashboard for a running serve instance
  history           Show recent dump generations
  config            Check, lock, read and edit configuration
  doctor            Validate configuration and required tools
  version           Show version information
  help              Show this help message

Use 'hexview <command> --help' for command flags.
`)
}

func printServeHelp() {
	fmt.Println("Usage: hexview serve [--config PATH]")
	fmt.Println("Run the HTTP API in the foreground until SIGINT or SIGTERM.")
}

func printOpenHelp() {
	fmt.Println("Usage: hexview open [--config PATH] [--theme dark|light] <paths...>")
	fmt.Println("Open files in the hex viewer. Directories are skipped; files already open are focused.")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  Tab, Shift+Tab   Move focus between toolbar fields and the dump")
	fmt.Println("  Enter            Apply toolbar options")
	fmt.Println("  Space            Toggle strip offsets (when focused)")
	fmt.Println("  Ctrl+N, Ctrl+P   Next / previous document")
	fmt.Println("  Ctrl+W           Close document")
	fmt.Println("  Ctrl+T           Toggle theme")
	fmt.Println("  q, Ctrl+C        Quit")
}

func printWatchHelp() {
	fmt.Println("Usage: hexview watch [--config PATH] [--url URL] [--api-key KEY]")
	fmt.Println("Follow sessions and dump generations of a running 'hexview serve'.")
}

func printDumpHelp() {
	fmt.Println("Usage: hexview dump [--config PATH] [-c N] [-g N] [-s N] [--strip] <path>")
	fmt.Println("Print the dump of a file to stdout.")
}

func printHistoryHelp() {
	fmt.Println("Usage: hexview history [--config PATH] [--limit N] [--json]")
	fmt.Println("Show recent dump generations, newest first.")
}
