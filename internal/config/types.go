package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hexview configuration.
type Config struct {
	Service      ServiceConfig `yaml:"service"`
	State        StateConfig   `yaml:"state"`
	WorkspaceDir string        `yaml:"workspace_dir"`
	Hex          HexConfig     `yaml:"hex"`
	API          APIConfig     `yaml:"api,omitempty"`
	Watch        WatchConfig   `yaml:"watch"`
	History      HistoryConfig `yaml:"history"`
	UI           UIConfig      `yaml:"ui"`

	// SourcePath is the file the config was loaded from; empty for defaults.
	SourcePath string     `yaml:"-"`
	sourceNode *yaml.Node `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// StateConfig defines where generation history is stored.
type StateConfig struct {
	Path string `yaml:"path"`
}

// HexConfig controls the dump pipeline.
type HexConfig struct {
	XXDPath      string        `yaml:"xxd_path"`
	SedPath      string        `yaml:"sed_path"`
	StripOffsets bool          `yaml:"strip_offsets"`
	Timeout      time.Duration `yaml:"timeout"`
	KillGrace    time.Duration `yaml:"kill_grace"`
	Defaults     HexDefaults   `yaml:"defaults"`
}

// HexDefaults are the toolbar values a document starts with.
type HexDefaults struct {
	RowBytes int   `yaml:"row_bytes"`
	ColBytes int   `yaml:"col_bytes"`
	Offset   int64 `yaml:"offset"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// WatchConfig controls invalidation on file changes.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// HistoryConfig controls generation log retention.
type HistoryConfig struct {
	Retention time.Duration `yaml:"retention"`
}

// UIConfig controls the terminal viewer.
type UIConfig struct {
	Theme   string `yaml:"theme"` // dark or light
	LogFile string `yaml:"log_file"`
}

// Defaults returns a Config with the built-in defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "hexview",
			LogLevel: "info",
		},
		State: StateConfig{
			Path: "./data/hexview.db",
		},
		Hex: HexConfig{
			XXDPath:   "xxd",
			SedPath:   "sed",
			Timeout:   30 * time.Second,
			KillGrace: 2 * time.Second,
			Defaults: HexDefaults{
				RowBytes: 16,
				ColBytes: 2,
				Offset:   0,
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8377",
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 100 * time.Millisecond,
		},
		History: HistoryConfig{
			Retention: 30 * 24 * time.Hour,
		},
		UI: UIConfig{
			Theme:   "dark",
			LogFile: "./data/hexview.log",
		},
	}
}
