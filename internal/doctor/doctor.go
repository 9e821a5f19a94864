// Package doctor validates hexview configuration and the tools it shells out to.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattjoyce/hexview/internal/config"
	"github.com/mattjoyce/hexview/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration against the local machine.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
	fsCheck  func(string) error
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:      cfg,
		lookPath: exec.LookPath,
		stat:     os.Stat,
		fsCheck:  storage.CheckLocalFilesystem,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateTools(r)
	d.validateHexConfig(r)
	d.validateWorkspace(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnStateFilesystem(r)
	d.warnUnresolvedEnvVars(r)
	d.warnDeprecatedSyntax(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	}
	switch d.cfg.Service.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		d.addError(r, "service", "service.log_level",
			fmt.Sprintf("log_level must be one of debug, info, warn, error (got %q)", d.cfg.Service.LogLevel))
	}
}

// validateTools checks that xxd, and sed when offsets are stripped by
// default, can be executed.
func (d *Doctor) validateTools(r *Result) {
	if _, err := d.lookPath(d.cfg.Hex.XXDPath); err != nil {
		d.addError(r, "tools", "hex.xxd_path",
			fmt.Sprintf("%q not found: %v (install vim-common or xxd)", d.cfg.Hex.XXDPath, err))
	}

	if _, err := d.lookPath(d.cfg.Hex.SedPath); err != nil {
		if d.cfg.Hex.StripOffsets {
			d.addError(r, "tools", "hex.sed_path",
				fmt.Sprintf("%q not found but hex.strip_offsets is enabled: %v", d.cfg.Hex.SedPath, err))
		} else {
			d.addWarning(r, "tools", "hex.sed_path",
				fmt.Sprintf("%q not found; stripping offsets will fail", d.cfg.Hex.SedPath))
		}
	}
}

func (d *Doctor) validateHexConfig(r *Result) {
	h := d.cfg.Hex
	if h.Defaults.RowBytes < 1 || h.Defaults.RowBytes > 256 {
		d.addError(r, "hex", "hex.defaults.row_bytes", "row_bytes must be between 1 and 256")
	}
	if h.Defaults.ColBytes < 1 || h.Defaults.ColBytes > 256 {
		d.addError(r, "hex", "hex.defaults.col_bytes", "col_bytes must be between 1 and 256")
	}
	if h.Defaults.ColBytes > h.Defaults.RowBytes {
		d.addWarning(r, "hex", "hex.defaults.col_bytes", "col_bytes larger than row_bytes renders one group per row")
	}
	if h.Timeout > 0 && h.Timeout < time.Second {
		d.addWarning(r, "hex", "hex.timeout",
			fmt.Sprintf("timeout %s is very short; large files will fail", h.Timeout))
	}
	if h.Timeout == 0 {
		d.addWarning(r, "hex", "hex.timeout", "no timeout; a stuck xxd holds its document until closed")
	}
}

func (d *Doctor) validateWorkspace(r *Result) {
	if d.cfg.WorkspaceDir == "" {
		return
	}
	dir := d.cfg.ResolvePath(d.cfg.WorkspaceDir)
	info, err := d.stat(dir)
	if err != nil {
		d.addError(r, "workspace", "workspace_dir", fmt.Sprintf("workspace_dir %s: %v", dir, err))
		return
	}
	if !info.IsDir() {
		d.addError(r, "workspace", "workspace_dir", fmt.Sprintf("workspace_dir %s is not a directory", dir))
	}
}

func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addError(r, "api", "api.auth", "API enabled but no authentication configured")
	}
	if strings.HasPrefix(d.cfg.API.Listen, "0.0.0.0") || strings.HasPrefix(d.cfg.API.Listen, ":") {
		d.addWarning(r, "api", "api.listen", "API listens on all interfaces; file contents are readable by any authenticated client")
	}
}

var knownScopes = map[string]bool{
	"*":         true,
	"hex:ro":    true,
	"hex:rw":    true,
	"events:ro": true,
	"events:rw": true,
}

func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			if !knownScopes[strings.TrimSpace(scope)] {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q (expected one of *, hex:ro, hex:rw, events:ro, events:rw)", scope))
			}
		}
	}
}

func (d *Doctor) warnStateFilesystem(r *Result) {
	if d.cfg.State.Path == "" {
		return
	}
	if err := d.fsCheck(d.cfg.ResolvePath(d.cfg.State.Path)); err != nil {
		d.addWarning(r, "state", "state.path", err.Error())
	}
}

func (d *Doctor) warnUnresolvedEnvVars(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		if token.Token == "" {
			d.addWarning(r, "env_vars", fmt.Sprintf("api.auth.tokens[%d].token", i),
				"token value is empty (possibly unresolved environment variable)")
		}
	}
}

func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
