// Package compiler turns the formulas of a workbook into a callable
// function of its declared inputs.
//
// A Compiler collects named input and output cells, then Compile runs the
// pipeline: resolve the cells reachable from the outputs, order them, lower
// them into one Starlark function and load it into the backend.
//
//	c := compiler.New(wb)
//	_ = c.AddInput("Sheet1", "A1", "x")
//	_ = c.AddOutput("Sheet1", "B1", "y")
//	art, err := c.Compile(ctx)
//	out, err := art.Call(ctx, map[string]any{"x": 3})
package compiler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapcell/internal/backend"
	"github.com/leapstack-labs/leapcell/internal/codegen"
	"github.com/leapstack-labs/leapcell/internal/resolver"
	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/functions"
)

// Compiler owns the bindings of one workbook. Its methods are safe for
// concurrent use; each Compile works on a snapshot of the bindings.
type Compiler struct {
	wb         core.Workbook
	funcs      *functions.Registry
	backend    backend.Backend
	logger     *slog.Logger
	blanks     resolver.BlankPolicy
	defaults   bool
	workers    int
	fold       bool
	parseCache *resolver.ParseCache

	mu      sync.Mutex
	inputs  []codegen.NamedAddress
	outputs []codegen.NamedAddress
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithFunctions sets the function registry. The default holds the builtins.
// The registry is frozen by the first Plan or Compile.
func WithFunctions(reg *functions.Registry) Option {
	return func(c *Compiler) {
		c.funcs = reg
	}
}

// WithBackend sets the executable backend. The default is Starlark.
func WithBackend(b backend.Backend) Option {
	return func(c *Compiler) {
		c.backend = b
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// WithBlankCellsAsZero reads references to empty cells as 0 instead of
// failing with *core.UnresolvedReferenceError.
func WithBlankCellsAsZero() Option {
	return func(c *Compiler) {
		c.blanks = resolver.BlankZero
	}
}

// WithCellDefaults lets calls omit inputs whose cell holds a literal; the
// literal is used instead.
func WithCellDefaults() Option {
	return func(c *Compiler) {
		c.defaults = true
	}
}

// WithParseWorkers bounds concurrent formula parsing. Zero means GOMAXPROCS.
func WithParseWorkers(n int) Option {
	return func(c *Compiler) {
		c.workers = n
	}
}

// WithoutConstantFolding keeps operations on literals in the generated code.
func WithoutConstantFolding() Option {
	return func(c *Compiler) {
		c.fold = false
	}
}

// New creates a compiler over wb.
func New(wb core.Workbook, opts ...Option) *Compiler {
	c := &Compiler{
		wb:         wb,
		fold:       true,
		parseCache: resolver.NewParseCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.funcs == nil {
		c.funcs = functions.Default()
	}
	if c.backend == nil {
		c.backend = backend.NewStarlark(backend.StarlarkOptions{Logger: c.logger})
	}
	return c
}

// Functions returns the function registry formulas are checked against.
func (c *Compiler) Functions() *functions.Registry {
	return c.funcs
}

// AddInput declares the cell at sheet!address as the function parameter name.
func (c *Compiler) AddInput(sheet, address, name string) error {
	return c.bind(core.RoleInput, sheet, address, name)
}

// AddOutput declares the cell at sheet!address as the return value name.
func (c *Compiler) AddOutput(sheet, address, name string) error {
	return c.bind(core.RoleOutput, sheet, address, name)
}

func (c *Compiler) bind(role core.Role, sheet, address, name string) error {
	if !codegen.ValidIdentifier(name) {
		return &core.InvalidBindingError{Name: name, Reason: "not a valid identifier"}
	}
	addr, err := core.ParseCellRef(sheet, address)
	if err != nil {
		return &core.InvalidBindingError{Name: name, Reason: err.Error()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	bindings := &c.outputs
	if role == core.RoleInput {
		bindings = &c.inputs
	}
	for _, b := range *bindings {
		if b.Name == name {
			return &core.DuplicateBindingError{Role: role, Name: name, Address: addr, Existing: b.Name, ByName: true}
		}
		if b.Address == addr {
			return &core.DuplicateBindingError{Role: role, Name: name, Address: addr, Existing: b.Name}
		}
	}
	*bindings = append(*bindings, codegen.NamedAddress{Name: name, Address: addr})

	c.logger.Debug("binding added", "role", role, "name", name, "address", addr)
	return nil
}

// Inputs returns the declared inputs in declaration order.
func (c *Compiler) Inputs() []codegen.NamedAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]codegen.NamedAddress(nil), c.inputs...)
}

// Outputs returns the declared outputs in declaration order.
func (c *Compiler) Outputs() []codegen.NamedAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]codegen.NamedAddress(nil), c.outputs...)
}

// Compile builds an artifact for the current bindings. It fails with the
// first error of any stage and never returns a partial artifact.
func (c *Compiler) Compile(ctx context.Context) (*Artifact, error) {
	plan, err := c.Plan(ctx)
	if err != nil {
		return nil, err
	}
	return c.CompilePlan(ctx, plan)
}

// CompilePlan builds an artifact from a plan this compiler produced.
func (c *Compiler) CompilePlan(ctx context.Context, plan *Plan) (*Artifact, error) {
	start := time.Now()

	prog, err := c.generate(plan)
	if err != nil {
		return nil, err
	}

	exe, err := c.backend.Compile(ctx, prog)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	art := &Artifact{
		id:       uuid.New(),
		prog:     prog,
		exe:      exe,
		backend:  c.backend.Name(),
		defaults: c.cellDefaults(prog),
	}
	c.logger.Debug("compiled",
		"artifact", art.id,
		"cells", len(plan.Order),
		"formulas", plan.Formulas,
		"cache_hits", plan.CacheHits,
		"cached_formulas", c.parseCache.Len(),
		"duration", time.Since(start))
	return art, nil
}

// GenerateSource returns the generated Starlark module without loading it.
func (c *Compiler) GenerateSource(ctx context.Context) (string, error) {
	plan, err := c.Plan(ctx)
	if err != nil {
		return "", err
	}
	prog, err := c.generate(plan)
	if err != nil {
		return "", err
	}
	return prog.Source, nil
}

func (c *Compiler) generate(plan *Plan) (*codegen.Program, error) {
	return codegen.Generate(codegen.Request{
		Order:         plan.Order,
		Exprs:         plan.Exprs,
		Cells:         plan.Cells,
		Blanks:        plan.Blanks,
		Inputs:        plan.Inputs,
		Outputs:       plan.Outputs,
		Functions:     c.funcs,
		FoldConstants: c.fold,
	})
}

// cellDefaults maps input names to the literal stored in their cell.
func (c *Compiler) cellDefaults(prog *codegen.Program) map[string]any {
	if !c.defaults {
		return nil
	}
	out := make(map[string]any)
	for _, in := range prog.Inputs {
		cell, ok := c.wb.Cell(in.Address)
		if !ok {
			continue
		}
		switch v := cell.Value; v.Kind {
		case core.KindNumber:
			out[in.Name] = v.Number
		case core.KindBool:
			out[in.Name] = v.Bool
		case core.KindText:
			out[in.Name] = v.Text
		}
	}
	return out
}
