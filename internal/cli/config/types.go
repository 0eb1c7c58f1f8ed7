// Package config provides configuration management for the leapcell CLI.
//
// The project settings shared with other tools live in internal/config;
// this package layers CLI concerns on top (state database, output mode,
// verbosity and per-environment overrides).
package config

import (
	"fmt"

	intconfig "github.com/leapstack-labs/leapcell/internal/config"
)

// Binding is an alias for the shared binding type.
type Binding = intconfig.Binding

// BlankCells is an alias for the shared blank cell policy.
type BlankCells = intconfig.BlankCells

// Config holds all CLI configuration options.
type Config struct {
	intconfig.ProjectConfig `koanf:",squash"`

	StatePath    string               `koanf:"state_path"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory relative paths were resolved against.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	Workbook     string     `koanf:"workbook"`
	FunctionsDir string     `koanf:"functions_dir"`
	BlankCells   BlankCells `koanf:"blank_cells"`
	StatePath    string     `koanf:"state_path"`
	Inputs       []Binding  `koanf:"inputs"`
	Outputs      []Binding  `koanf:"outputs"`
}

// Default configuration values.
const (
	DefaultEnv    = ""
	DefaultOutput = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json":
	default:
		return &InvalidOutputError{Value: c.OutputFormat}
	}
	return c.ProjectConfig.Validate()
}

// InvalidOutputError reports an unknown --output value.
type InvalidOutputError struct {
	Value string
}

func (e *InvalidOutputError) Error() string {
	return fmt.Sprintf("invalid output format %q\nHint: Use one of auto, text, markdown, json", e.Value)
}
