package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/hexview/internal/config"
	"github.com/mattjoyce/hexview/internal/tui/watch"
)

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	apiURL := fs.String("url", "", "Base URL of a running hexview serve (default from api.listen)")
	apiKey := fs.String("api-key", "", "Bearer token (default from api.auth.api_key)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	url := *apiURL
	if url == "" {
		url = serverURL(cfg)
	}
	key := *apiKey
	if key == "" {
		key = cfg.API.Auth.APIKey
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "No API key: pass --api-key or set api.auth.api_key")
		return 1
	}

	m := watch.New(strings.TrimRight(url, "/"), key, watch.WithTheme(cfg.UI.Theme))
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// serverURL turns api.listen into a URL a local client can dial.
func serverURL(cfg *config.Config) string {
	host, port, err := net.SplitHostPort(cfg.API.Listen)
	if err != nil {
		return "http://" + cfg.API.Listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
