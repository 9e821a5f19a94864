package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ResolvePath expands "~" and makes p absolute relative to the directory
// the config was loaded from, or the working directory for defaults.
func (c *Config) ResolvePath(p string) string {
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	if c.SourcePath != "" {
		return filepath.Join(filepath.Dir(c.SourcePath), p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// GetPath retrieves a value from the configuration using a dot-notation
// path such as "hex.defaults.row_bytes".
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}

func findNode(node *yaml.Node, path string, create bool) (*yaml.Node, error) {
	current := node

	for _, part := range strings.Split(path, ".") {
		if current.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("not a mapping node")
		}

		found := false
		for i := 0; i+1 < len(current.Content); i += 2 {
			if current.Content[i].Value == part {
				current = current.Content[i+1]
				found = true
				break
			}
		}
		if found {
			continue
		}
		if !create {
			return nil, fmt.Errorf("key %q not found", part)
		}

		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}
		valueNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		current.Content = append(current.Content, keyNode, valueNode)
		current = valueNode
	}

	return current, nil
}

// SetPath sets a scalar at a dot-notation path in the source document.
// With persist the file is rewritten, reloaded and rolled back if the
// result fails validation.
func (c *Config) SetPath(path, value string, persist bool) error {
	if c.SourcePath == "" || c.sourceNode == nil || c.sourceNode.Kind != yaml.DocumentNode {
		return fmt.Errorf("no valid configuration source found")
	}
	if len(c.sourceNode.Content) == 0 {
		c.sourceNode.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}

	target, err := findNode(c.sourceNode.Content[0], path, true)
	if err != nil {
		return fmt.Errorf("failed to navigate/create path %q: %w", path, err)
	}

	target.Kind = yaml.ScalarNode
	target.Value = value
	target.Tag = guessTag(value)
	target.Content = nil

	if !persist {
		return nil
	}

	candidate, err := yaml.Marshal(c.sourceNode)
	if err != nil {
		return err
	}
	return persistWithValidation(c.SourcePath, candidate)
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	isDigit := true
	for i, c := range v {
		if i == 0 && c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			isDigit = false
			break
		}
	}
	if isDigit && v != "" && v != "-" {
		return "!!int"
	}
	return "!!str"
}

func persistWithValidation(targetFile string, candidate []byte) error {
	original, err := os.ReadFile(targetFile)
	if err != nil {
		return fmt.Errorf("failed to read original config file: %w", err)
	}

	mode := os.FileMode(0644)
	if info, statErr := os.Stat(targetFile); statErr == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(targetFile, candidate, mode); err != nil {
		return fmt.Errorf("failed to persist config change: %w", err)
	}

	if _, err := Load(targetFile); err != nil {
		if restoreErr := os.WriteFile(targetFile, original, mode); restoreErr != nil {
			return fmt.Errorf("validation failed (%v) and rollback failed (%v)", err, restoreErr)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
