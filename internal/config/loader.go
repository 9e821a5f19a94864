package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvConfigDir names the environment variable that overrides discovery.
const EnvConfigDir = "HEXVIEW_CONFIG_DIR"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file or a directory holding
// config.yaml. ${VAR} references are interpolated from the environment.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	cfg = applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configPath if set, otherwise the discovered config,
// otherwise the built-in defaults.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath != "" {
		return Load(configPath)
	}
	dir, err := DiscoverConfigDir()
	if err != nil {
		return Defaults(), nil
	}
	return Load(dir)
}

// DiscoverConfigDir finds the config by checking standard locations.
// Priority order: $HEXVIEW_CONFIG_DIR, ~/.config/hexview, /etc/hexview, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "hexview")
		if _, err := os.Stat(filepath.Join(userConfigDir, "config.yaml")); err == nil {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/hexview"
	if _, err := os.Stat(filepath.Join(systemConfigDir, "config.yaml")); err == nil {
		return systemConfigDir, nil
	}

	localConfigPath := "./config.yaml"
	if _, err := os.Stat(localConfigPath); err == nil {
		return localConfigPath, nil
	}

	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/hexview, /etc/hexview, ./config.yaml)", EnvConfigDir)
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Keep the raw document for SetPath so comments survive a rewrite.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err == nil {
		cfg.sourceNode = &node
	}
	return &cfg, nil
}

// verifyConfigHash checks path against the lock in its directory. An
// unlocked directory skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	lock, err := ReadLock(dir)
	if err != nil {
		return err
	}
	if lock == nil {
		return nil
	}
	if err := lock.Verify(path); err != nil {
		return fmt.Errorf("config verification failed: %w\n"+
			"If you edited this file intentionally, run: hexview config lock --config %s", err, dir)
	}
	return nil
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.Hex.XXDPath == "" {
		cfg.Hex.XXDPath = defaults.Hex.XXDPath
	}
	if cfg.Hex.SedPath == "" {
		cfg.Hex.SedPath = defaults.Hex.SedPath
	}
	if cfg.Hex.Timeout == 0 {
		cfg.Hex.Timeout = defaults.Hex.Timeout
	}
	if cfg.Hex.KillGrace == 0 {
		cfg.Hex.KillGrace = defaults.Hex.KillGrace
	}
	if cfg.Hex.Defaults.RowBytes == 0 {
		cfg.Hex.Defaults.RowBytes = defaults.Hex.Defaults.RowBytes
	}
	if cfg.Hex.Defaults.ColBytes == 0 {
		cfg.Hex.Defaults.ColBytes = defaults.Hex.Defaults.ColBytes
	}

	if !cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API = defaults.API
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = defaults.Watch.Debounce
	}
	if cfg.History.Retention == 0 {
		cfg.History.Retention = defaults.History.Retention
	}

	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.LogFile == "" {
		cfg.UI.LogFile = defaults.UI.LogFile
	}

	return cfg
}

func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validate reports it where it matters.
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Hex.Timeout < 0 {
		return fmt.Errorf("hex.timeout must not be negative")
	}
	if cfg.Hex.KillGrace < 0 {
		return fmt.Errorf("hex.kill_grace must not be negative")
	}
	if d := cfg.Hex.Defaults; d.RowBytes < 1 || d.RowBytes > 256 {
		return fmt.Errorf("hex.defaults.row_bytes must be between 1 and 256 (got %d)", d.RowBytes)
	}
	if d := cfg.Hex.Defaults; d.ColBytes < 1 || d.ColBytes > 256 {
		return fmt.Errorf("hex.defaults.col_bytes must be between 1 and 256 (got %d)", d.ColBytes)
	}
	if cfg.Hex.Defaults.Offset < 0 {
		return fmt.Errorf("hex.defaults.offset must not be negative")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey)
			return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if envVarPattern.MatchString(tok.Token) {
				matches := envVarPattern.FindStringSubmatch(tok.Token)
				return fmt.Errorf("api.auth.tokens[%d].token: environment variable ${%s} is not set", i, matches[1])
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth: api_key or tokens required when api is enabled")
		}
	}

	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}

	switch cfg.UI.Theme {
	case "dark", "light":
	default:
		return fmt.Errorf("ui.theme must be dark or light (got %q)", cfg.UI.Theme)
	}

	return nil
}
