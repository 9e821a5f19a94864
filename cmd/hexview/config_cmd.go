package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/hexview/internal/config"
	"github.com/mattjoyce/hexview/internal/doctor"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "get":
		if hasHelpFlag(actionArgs) {
			printConfigGetHelp()
			return 0
		}
		return runConfigGet(actionArgs)
	case "set":
		if hasHelpFlag(actionArgs) {
			printConfigSetHelp()
			return 0
		}
		return runConfigSet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigCheck(args []string) int {
	var configPath, format string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 1
	}
	return 0
}

// resolveConfigFile returns the config directory and file name that
// configPath (or discovery) points at.
func resolveConfigFile(configPath string) (string, string, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			return "", "", err
		}
		configPath = discovered
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return "", "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", fmt.Errorf("config not found: %s", abs)
	}
	if info.IsDir() {
		return abs, "config.yaml", nil
	}
	return filepath.Dir(abs), filepath.Base(abs), nil
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	dir, file, err := resolveConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config: %v\n", err)
		return 1
	}

	report, err := config.LockFile(filepath.Join(dir, file), dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if isVerbose {
		fmt.Printf("Processing directory: %s\n", dir)
		fmt.Printf("  HASH   %s %s (%d bytes)\n", report.Lock.File, report.Lock.BLAKE3, report.Lock.Size)
		switch {
		case report.Changed():
			fmt.Printf("  WAS    %s\n", report.Previous)
		case report.Previous != "":
			fmt.Println("  SAME   content matches the existing lock")
		}
	}

	if dryRun {
		fmt.Printf("Dry-run: would write %s\n", report.ChecksumPath)
		return 0
	}
	fmt.Printf("Locked %s\n", report.ChecksumPath)
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: hexview config get <path> [--json]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(val, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("%v\n", val)
	}
	return 0
}

func runConfigSet(args []string) int {
	var configPath string
	var dryRun, apply bool

	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&dryRun, "dry-run", false, "Preview changes")
	fs.BoolVar(&apply, "apply", false, "Apply changes")

	var kvPair string
	var remaining []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") && kvPair == "" {
			kvPair = arg
		} else {
			remaining = append(remaining, arg)
		}
	}
	if err := fs.Parse(remaining); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if kvPair == "" {
		fmt.Fprintln(os.Stderr, "Usage: hexview config set <path>=<value> [--dry-run | --apply]")
		return 1
	}
	if !dryRun && !apply {
		fmt.Fprintln(os.Stderr, "Error: either --dry-run or --apply must be specified for 'config set'.")
		return 1
	}

	path, value, _ := strings.Cut(kvPair, "=")

	dir, file, err := resolveConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	cfg, err := config.Load(filepath.Join(dir, file))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if err := cfg.SetPath(path, value, apply && !dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Set failed: %v\n", err)
		if _, statErr := os.Stat(filepath.Join(dir, config.ChecksumsFile)); statErr == nil {
			fmt.Fprintf(os.Stderr, "Note: %s is locked; remove %s, apply the change, then run: hexview config lock\n", file, config.ChecksumsFile)
		}
		return 1
	}

	if dryRun {
		fmt.Printf("Dry-run: would set %q to %q\n", path, value)
		return 0
	}
	fmt.Printf("Successfully set %q to %q\n", path, value)
	return 0
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hexview config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, get, set")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: hexview config check [--config PATH] [--format human|json] [--strict] [--json]")
	fmt.Println("Validate configuration and check that xxd (and sed when needed) are installed.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: hexview config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Record the BLAKE3 hash of the config file in .checksums.")
}

func printConfigGetHelp() {
	fmt.Println("Usage: hexview config get <path> [--config PATH] [--json]")
	fmt.Println("Read a single value from the resolved configuration.")
}

func printConfigSetHelp() {
	fmt.Println("Usage: hexview config set <path>=<value> [--config PATH] [--dry-run | --apply]")
	fmt.Println("Set a configuration value with either preview or apply mode.")
}
