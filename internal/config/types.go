// Package config provides the project configuration of leapcell.
// It is decoupled from CLI concerns so that tools embedding the compiler
// can read leapcell.yaml without cobra or flags.
package config

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapcell/internal/backend"
	"github.com/leapstack-labs/leapcell/pkg/core"
)

// BlankCells selects how references to empty cells compile.
type BlankCells string

// Blank cell policies.
const (
	BlankCellsError BlankCells = "error"
	BlankCellsZero  BlankCells = "zero"
)

// ParseBlankCells parses a policy name, case-insensitively.
func ParseBlankCells(s string) (BlankCells, error) {
	switch p := BlankCells(strings.ToLower(strings.TrimSpace(s))); p {
	case BlankCellsError, BlankCellsZero:
		return p, nil
	case "":
		return BlankCellsError, nil
	default:
		return "", fmt.Errorf("invalid blank_cells %q (want %s or %s)", s, BlankCellsError, BlankCellsZero)
	}
}

// Binding names a cell as a function input or output.
type Binding struct {
	Name string `koanf:"name"`
	// Cell is a sheet-qualified reference such as "Inputs!B2".
	Cell string `koanf:"cell"`
}

// Split returns the sheet and the cell reference of b.
func (b Binding) Split() (sheet, ref string, err error) {
	sheet, ref, ok := strings.Cut(b.Cell, "!")
	if !ok || sheet == "" || ref == "" {
		return "", "", fmt.Errorf("binding %s: cell %q must be sheet-qualified (Sheet!A1)", b.Name, b.Cell)
	}
	return strings.Trim(sheet, "'"), ref, nil
}

// ProjectConfig holds the settings that shape a compilation.
type ProjectConfig struct {
	Workbook     string     `koanf:"workbook"`
	FunctionsDir string     `koanf:"functions_dir"`
	BlankCells   BlankCells `koanf:"blank_cells"`
	ParseWorkers int        `koanf:"parse_workers"`
	CellDefaults bool       `koanf:"cell_defaults"`
	Backend      string     `koanf:"backend"`
	Inputs       []Binding  `koanf:"inputs"`
	Outputs      []Binding  `koanf:"outputs"`
}

// Validate checks the configuration without touching the filesystem.
func (c *ProjectConfig) Validate() error {
	if _, err := ParseBlankCells(string(c.BlankCells)); err != nil {
		return err
	}
	if c.ParseWorkers < 0 {
		return fmt.Errorf("parse_workers must not be negative, got %d", c.ParseWorkers)
	}
	if _, ok := backend.Get(c.Backend); c.Backend != "" && !ok {
		return &backend.UnknownBackendError{Name: c.Backend, Available: backend.List()}
	}
	for _, group := range []struct {
		role     core.Role
		bindings []Binding
	}{
		{core.RoleInput, c.Inputs},
		{core.RoleOutput, c.Outputs},
	} {
		for i, b := range group.bindings {
			if b.Name == "" {
				return fmt.Errorf("%s %d: name is required", group.role, i+1)
			}
			if _, _, err := b.Split(); err != nil {
				return err
			}
		}
	}
	return nil
}
