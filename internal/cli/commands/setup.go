package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapcell/internal/backend"
	"github.com/leapstack-labs/leapcell/internal/cli/config"
	"github.com/leapstack-labs/leapcell/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapcell/internal/config"
	"github.com/leapstack-labs/leapcell/internal/macro"
	starctx "github.com/leapstack-labs/leapcell/internal/starlark"
	"github.com/leapstack-labs/leapcell/internal/state"
	"github.com/leapstack-labs/leapcell/pkg/compiler"
	"github.com/leapstack-labs/leapcell/pkg/functions"
	"github.com/leapstack-labs/leapcell/pkg/workbook"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// getConfig returns the current configuration, or defaults when the root
// command did not load one (commands run standalone in tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg := &config.Config{OutputFormat: config.DefaultOutput}
	cfg.ApplyDefaults()
	return cfg
}

// bindingFlags are the per-command input and output cell overrides.
type bindingFlags struct {
	inputs  []string
	outputs []string
}

func (b *bindingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&b.inputs, "in", nil, "Declare an input cell as name=Sheet!A1 (repeatable, replaces configured inputs)")
	cmd.Flags().StringArrayVar(&b.outputs, "out", nil, "Declare an output cell as name=Sheet!A1 (repeatable, replaces configured outputs)")
}

// resolve returns the bindings to compile: flags win over configuration.
func (b *bindingFlags) resolve(cfg *config.Config) (inputs, outputs []config.Binding, err error) {
	inputs, outputs = cfg.Inputs, cfg.Outputs
	if len(b.inputs) > 0 {
		if inputs, err = parseBindings(b.inputs); err != nil {
			return nil, nil, err
		}
	}
	if len(b.outputs) > 0 {
		if outputs, err = parseBindings(b.outputs); err != nil {
			return nil, nil, err
		}
	}
	return inputs, outputs, nil
}

func parseBindings(specs []string) ([]config.Binding, error) {
	out := make([]config.Binding, 0, len(specs))
	for _, spec := range specs {
		name, cell, ok := strings.Cut(spec, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid binding %q (want name=Sheet!A1)", spec)
		}
		out = append(out, config.Binding{Name: strings.TrimSpace(name), Cell: strings.TrimSpace(cell)})
	}
	return out, nil
}

// isSQLite reports whether path names a SQLite workbook.
func isSQLite(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	default:
		return false
	}
}

// LoadWorkbook loads the configured workbook: YAML, CSV, a directory of
// CSV sheets, or a SQLite database written by the import command.
func (c *CommandContext) LoadWorkbook(ctx context.Context) (*workbook.Store, error) {
	path := c.Cfg.Workbook
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("workbook does not exist: %s\nHint: Set workbook in leapcell.yaml or use --workbook", path)
	}

	if isSQLite(path) {
		store, err := state.OpenAndMigrate(path, c.Logger)
		if err != nil {
			return nil, err
		}
		defer func() { _ = store.Close() }()
		return store.LoadWorkbook(ctx)
	}
	return workbook.LoadFile(path)
}

// OpenState opens the state database at path, creating its directory.
func (c *CommandContext) OpenState(path string) (*state.SQLiteStore, error) {
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return state.OpenAndMigrate(path, c.Logger)
}

// Project is a loaded workbook with a compiler bound to it.
type Project struct {
	Workbook *workbook.Store
	Compiler *compiler.Compiler
	// UserFunctions counts the functions loaded from the functions directory.
	UserFunctions int
}

// Registry builds the function registry: builtins plus the functions of
// the configured functions directory.
func (c *CommandContext) Registry() (*functions.Registry, int, error) {
	reg := functions.Default()
	pool := starctx.NewThreadPool(0, c.Logger)
	n, err := macro.NewLoader(c.Cfg.FunctionsDir, pool, c.Logger).Register(reg)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load functions: %w", err)
	}
	return reg, n, nil
}

// OpenProject loads the workbook and prepares a compiler with the given
// bindings.
func (c *CommandContext) OpenProject(ctx context.Context, inputs, outputs []config.Binding) (*Project, error) {
	wb, err := c.LoadWorkbook(ctx)
	if err != nil {
		return nil, err
	}
	return c.newProject(wb, inputs, outputs)
}

func (c *CommandContext) newProject(wb *workbook.Store, inputs, outputs []config.Binding) (*Project, error) {
	reg, n, err := c.Registry()
	if err != nil {
		return nil, err
	}
	be, err := backend.New(c.Cfg.Backend, c.Logger)
	if err != nil {
		return nil, err
	}

	opts := []compiler.Option{
		compiler.WithFunctions(reg),
		compiler.WithBackend(be),
		compiler.WithLogger(c.Logger),
		compiler.WithParseWorkers(c.Cfg.ParseWorkers),
	}
	if c.Cfg.BlankCells == intconfig.BlankCellsZero {
		opts = append(opts, compiler.WithBlankCellsAsZero())
	}
	if c.Cfg.CellDefaults {
		opts = append(opts, compiler.WithCellDefaults())
	}
	comp := compiler.New(wb, opts...)

	for _, b := range inputs {
		sheet, ref, err := b.Split()
		if err != nil {
			return nil, err
		}
		if err := comp.AddInput(sheet, ref, b.Name); err != nil {
			return nil, err
		}
	}
	for _, b := range outputs {
		sheet, ref, err := b.Split()
		if err != nil {
			return nil, err
		}
		if err := comp.AddOutput(sheet, ref, b.Name); err != nil {
			return nil, err
		}
	}

	c.Logger.Debug("project opened", "workbook", c.Cfg.Workbook, "cells", wb.Len(), "functions", reg.Count(), "user_functions", n)
	return &Project{Workbook: wb, Compiler: comp, UserFunctions: n}, nil
}

// parseValue converts command-line text into an input value: numbers,
// TRUE/FALSE, and otherwise text (surrounding double quotes are removed).
func parseValue(s string) any {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToUpper(s) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	}
	if unq, err := strconv.Unquote(s); err == nil && strings.HasPrefix(s, `"`) {
		return unq
	}
	return s
}

// parseAssignments parses name=value pairs.
func parseAssignments(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q (want name=value)", pair)
		}
		args[name] = parseValue(value)
	}
	return args, nil
}

// formatValue renders an output value the way a spreadsheet shows it.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(x)
	}
}

func bindingInfos(bs []compiler.Binding) []output.BindingInfo {
	out := make([]output.BindingInfo, len(bs))
	for i, b := range bs {
		out[i] = output.BindingInfo{Name: b.Name, Cell: b.Address.String(), Kind: b.Kind.String()}
	}
	return out
}
