package config

import "github.com/leapstack-labs/leapcell/internal/backend"

// Default configuration values.
const (
	DefaultWorkbook     = "workbook.yaml"
	DefaultFunctionsDir = "functions"
	DefaultBlankCells   = BlankCellsError
)

// ApplyDefaults fills unset fields of c.
func (c *ProjectConfig) ApplyDefaults() {
	if c.Workbook == "" {
		c.Workbook = DefaultWorkbook
	}
	if c.FunctionsDir == "" {
		c.FunctionsDir = DefaultFunctionsDir
	}
	if c.BlankCells == "" {
		c.BlankCells = DefaultBlankCells
	}
	if c.Backend == "" {
		c.Backend = backend.DefaultName
	}
}

// Defaults returns the default values keyed the way they appear in
// leapcell.yaml, for use with a confmap provider.
func Defaults() map[string]any {
	return map[string]any{
		"workbook":      DefaultWorkbook,
		"functions_dir": DefaultFunctionsDir,
		"blank_cells":   string(DefaultBlankCells),
		"parse_workers": 0,
		"cell_defaults": false,
		"backend":       backend.DefaultName,
	}
}
