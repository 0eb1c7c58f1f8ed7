package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcell/internal/backend"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadFromDir(t *testing.T) {
	t.Run("no config file", func(t *testing.T) {
		cfg, err := LoadFromDir(t.TempDir())
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("full config", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, ConfigFileName, `
workbook: model.yaml
functions_dir: udf
blank_cells: Zero
parse_workers: 4
cell_defaults: true
inputs:
  - name: rate
    cell: Inputs!B2
outputs:
  - name: total
    cell: "'Model'!C10"
`)
		cfg, err := LoadFromDir(dir)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "model.yaml", cfg.Workbook)
		assert.Equal(t, "udf", cfg.FunctionsDir)
		assert.Equal(t, BlankCellsZero, cfg.BlankCells)
		assert.Equal(t, 4, cfg.ParseWorkers)
		assert.True(t, cfg.CellDefaults)
		assert.Equal(t, backend.DefaultName, cfg.Backend)
		assert.Equal(t, []Binding{{Name: "rate", Cell: "Inputs!B2"}}, cfg.Inputs)

		sheet, ref, err := cfg.Outputs[0].Split()
		require.NoError(t, err)
		assert.Equal(t, "Model", sheet)
		assert.Equal(t, "C10", ref)
	})

	t.Run("yml alternate name with defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, ConfigFileNameAlt, "parse_workers: 2\n")
		cfg, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, DefaultWorkbook, cfg.Workbook)
		assert.Equal(t, DefaultFunctionsDir, cfg.FunctionsDir)
		assert.Equal(t, BlankCellsError, cfg.BlankCells)
	})

	t.Run("invalid blank cells", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, ConfigFileName, "blank_cells: maybe\n")
		_, err := LoadFromDir(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid blank_cells "maybe"`)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, ConfigFileName, "inputs: [\n")
		_, err := LoadFromDir(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, ConfigFileName, "workbook: w.yaml\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, root, FindProjectRoot(root))
	assert.Empty(t, FindProjectRoot(t.TempDir()))
}

func TestProjectConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProjectConfig
		wantErr string
	}{
		{
			name: "valid",
			cfg: ProjectConfig{
				BlankCells: BlankCellsZero,
				Backend:    "starlark",
				Inputs:     []Binding{{Name: "x", Cell: "Sheet1!A1"}},
				Outputs:    []Binding{{Name: "y", Cell: "Sheet1!B1"}},
			},
		},
		{
			name: "empty is valid",
			cfg:  ProjectConfig{},
		},
		{
			name:    "unknown backend",
			cfg:     ProjectConfig{Backend: "llvm"},
			wantErr: "unknown backend",
		},
		{
			name:    "negative workers",
			cfg:     ProjectConfig{ParseWorkers: -1},
			wantErr: "parse_workers must not be negative",
		},
		{
			name:    "unnamed output",
			cfg:     ProjectConfig{Outputs: []Binding{{Cell: "Sheet1!A1"}}},
			wantErr: "output 1: name is required",
		},
		{
			name:    "unqualified cell",
			cfg:     ProjectConfig{Inputs: []Binding{{Name: "x", Cell: "A1"}}},
			wantErr: "must be sheet-qualified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseBlankCells(t *testing.T) {
	for in, want := range map[string]BlankCells{
		"":       BlankCellsError,
		"error":  BlankCellsError,
		" ZERO ": BlankCellsZero,
	} {
		got, err := ParseBlankCells(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseBlankCells("blank")
	assert.Error(t, err)
}
