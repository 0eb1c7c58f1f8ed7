package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intconfig "github.com/leapstack-labs/leapcell/internal/config"
)

const fixture = `workbook: model.yaml
functions_dir: udf
blank_cells: error
inputs:
  - name: x
    cell: Sheet1!A1
outputs:
  - name: y
    cell: Sheet1!B1
environments:
  scenario:
    workbook: scenario.yaml
    blank_cells: zero
    outputs:
      - name: z
        cell: Sheet1!C1
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, intconfig.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	flags.String("workbook", "", "")
	flags.String("functions-dir", "", "")
	flags.String("state", "", "")
	flags.String("env", "", "")
	flags.String("output", "", "")
	flags.String("blank-cells", "", "")
	flags.BoolP("verbose", "v", false, "")
	return flags
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	cfgPath := writeFixture(t, fixture)
	root := filepath.Dir(cfgPath)

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(root, "model.yaml"), cfg.Workbook)
	assert.Equal(t, filepath.Join(root, "udf"), cfg.FunctionsDir)
	assert.Equal(t, intconfig.BlankCellsError, cfg.BlankCells)
	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.Empty(t, cfg.StatePath)
	assert.Equal(t, []Binding{{Name: "x", Cell: "Sheet1!A1"}}, cfg.Inputs)
	assert.Equal(t, cfgPath, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_Environment(t *testing.T) {
	ResetConfig()
	cfgPath := writeFixture(t, fixture)
	root := filepath.Dir(cfgPath)

	flags := testFlags()
	require.NoError(t, flags.Set("env", "scenario"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)
	assert.Equal(t, "scenario", cfg.Environment)
	assert.Equal(t, filepath.Join(root, "scenario.yaml"), cfg.Workbook)
	assert.Equal(t, intconfig.BlankCellsZero, cfg.BlankCells)
	assert.Equal(t, []Binding{{Name: "x", Cell: "Sheet1!A1"}}, cfg.Inputs, "inputs are not overridden")
	assert.Equal(t, []Binding{{Name: "z", Cell: "Sheet1!C1"}}, cfg.Outputs)
}

func TestLoadConfig_UnknownEnvironment(t *testing.T) {
	ResetConfig()
	cfgPath := writeFixture(t, fixture)
	t.Setenv("LEAPCELL_ENVIRONMENT", "nonexistent")

	_, err := LoadConfig(cfgPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown environment "nonexistent"`)
}

func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	cfgPath := writeFixture(t, fixture)
	t.Setenv("LEAPCELL_WORKBOOK", "from_env.yaml")

	flags := testFlags()
	require.NoError(t, flags.Set("workbook", "from_flag.yaml"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	want, err := filepath.Abs("from_flag.yaml")
	require.NoError(t, err)
	assert.Equal(t, want, cfg.Workbook, "flag value should override config file and env var")
}

func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()
	cfgPath := writeFixture(t, fixture)
	t.Setenv("LEAPCELL_WORKBOOK", "from_env.yaml")
	t.Setenv("LEAPCELL_BLANK_CELLS", "ZERO")

	cfg, err := LoadConfig(cfgPath, testFlags())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(cfgPath), "from_env.yaml"), cfg.Workbook)
	assert.Equal(t, intconfig.BlankCellsZero, cfg.BlankCells)
}

func TestLoadConfig_StateFlag(t *testing.T) {
	ResetConfig()
	cfgPath := writeFixture(t, fixture)

	flags := testFlags()
	require.NoError(t, flags.Set("state", ":memory:"))
	require.NoError(t, flags.Set("verbose", "true"))
	require.NoError(t, flags.Set("output", "json"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.StatePath)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "json", cfg.OutputFormat)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		flags   map[string]string
		wantErr string
	}{
		{
			name:    "bad output",
			content: "output: html\n",
			wantErr: `invalid output format "html"`,
		},
		{
			name:    "bad blank cells flag",
			content: "workbook: w.yaml\n",
			flags:   map[string]string{"blank-cells": "empty"},
			wantErr: `invalid blank_cells "empty"`,
		},
		{
			name:    "unknown backend",
			content: "backend: wasm\n",
			wantErr: `unknown backend "wasm"`,
		},
		{
			name:    "malformed file",
			content: "outputs: [\n",
			wantErr: "error reading config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetConfig()
			flags := testFlags()
			for name, value := range tt.flags {
				require.NoError(t, flags.Set(name, value))
			}
			_, err := LoadConfig(writeFixture(t, tt.content), flags)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	ResetConfig()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	logger := slog.New(slog.DiscardHandler)
	ctx := context.WithValue(context.Background(), LoggerKey(), logger)
	assert.Same(t, logger, GetLogger(ctx))
}
