package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapcell/internal/codegen"
	starctx "github.com/leapstack-labs/leapcell/internal/starlark"
	"github.com/leapstack-labs/leapcell/pkg/core"
)

// DefaultName is the backend used when none is configured.
const DefaultName = "starlark"

func init() {
	Register(DefaultName, func(logger *slog.Logger) Backend {
		return NewStarlark(StarlarkOptions{Logger: logger})
	})
}

// StarlarkOptions configures the Starlark backend.
type StarlarkOptions struct {
	// PoolSize bounds the idle threads kept per compiled program (default 10).
	PoolSize int
	// MaxConcurrency bounds the concurrent calls of a batch (default PoolSize).
	MaxConcurrency int
	Logger         *slog.Logger
}

// Starlark executes generated programs with go.starlark.net.
type Starlark struct {
	opts   StarlarkOptions
	logger *slog.Logger
}

// NewStarlark creates a Starlark backend.
func NewStarlark(opts StarlarkOptions) *Starlark {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Starlark{opts: opts, logger: logger}
}

// Name implements Backend.
func (s *Starlark) Name() string { return DefaultName }

// Compile executes the program's module once and freezes it.
func (s *Starlark) Compile(ctx context.Context, prog *codegen.Program) (Executable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pool := starctx.NewThreadPool(s.opts.PoolSize, s.logger)
	filename := prog.Entry + ".star"
	module, err := starctx.Load(filename, prog.Source, prog.Entry, starctx.Predeclared(prog.UserFunctions), pool)
	if err != nil {
		return nil, &core.BackendCompilationError{Backend: s.Name(), Err: err}
	}
	if got := len(module.Params()); got != len(prog.Inputs) {
		err := fmt.Errorf("%s takes %d parameters, program declares %d inputs", prog.Entry, got, len(prog.Inputs))
		return nil, &core.BackendCompilationError{Backend: s.Name(), Err: err}
	}

	s.logger.Debug("program loaded",
		"file", filename,
		"inputs", len(prog.Inputs),
		"outputs", len(prog.Outputs),
		"user_functions", len(prog.UserFunctions))

	return &starlarkExecutable{
		module:   module,
		inputs:   prog.Inputs,
		outputs:  prog.Outputs,
		executor: module.Executor(s.opts.MaxConcurrency),
	}, nil
}

type starlarkExecutable struct {
	module   *starctx.ExecutionContext
	inputs   []codegen.Binding
	outputs  []codegen.Binding
	executor *starctx.ParallelExecutor
}

func (e *starlarkExecutable) Invoke(ctx context.Context, args []any) ([]any, error) {
	in, err := e.arguments(args)
	if err != nil {
		return nil, err
	}
	out, err := e.module.Call(ctx, in)
	if err != nil {
		return nil, evaluationError(ctx, err)
	}
	return e.results(out)
}

func (e *starlarkExecutable) InvokeBatch(ctx context.Context, rows [][]any) ([][]any, []error) {
	results := make([][]any, len(rows))
	errs := make([]error, len(rows))

	tasks := make([]starctx.CallTask, 0, len(rows))
	index := make([]int, 0, len(rows))
	for i, row := range rows {
		in, err := e.arguments(row)
		if err != nil {
			errs[i] = err
			continue
		}
		tasks = append(tasks, starctx.CallTask{Name: fmt.Sprintf("row %d", i+1), Args: in})
		index = append(index, i)
	}

	for j, res := range e.executor.Execute(ctx, tasks) {
		i := index[j]
		if res.Error != nil {
			errs[i] = evaluationError(ctx, res.Error)
			continue
		}
		tuple, ok := res.Value.(starlark.Tuple)
		if !ok {
			errs[i] = &core.EvaluationError{Err: fmt.Errorf("returned %s, want tuple", res.Value.Type())}
			continue
		}
		results[i], errs[i] = e.results(tuple)
	}
	return results, errs
}

// arguments converts Go values to the static kinds of the inputs.
func (e *starlarkExecutable) arguments(args []any) (starlark.Tuple, error) {
	if len(args) != len(e.inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(e.inputs), len(args))
	}
	in := make(starlark.Tuple, len(args))
	for i, arg := range args {
		v, err := starctx.ToStarlark(arg)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", e.inputs[i].Name, err)
		}
		if in[i], err = coerce(v, e.inputs[i].Kind); err != nil {
			return nil, fmt.Errorf("input %q: %w", e.inputs[i].Name, err)
		}
	}
	return in, nil
}

func (e *starlarkExecutable) results(out starlark.Tuple) ([]any, error) {
	if len(out) != len(e.outputs) {
		return nil, &core.EvaluationError{Err: fmt.Errorf("returned %d values, want %d", len(out), len(e.outputs))}
	}
	values := make([]any, len(out))
	for i, v := range out {
		g, err := starctx.ToGo(v)
		if err != nil {
			return nil, &core.EvaluationError{Err: fmt.Errorf("output %q: %w", e.outputs[i].Name, err)}
		}
		values[i] = g
	}
	return values, nil
}

// coerce applies the numeric promotions of formulas: booleans count as
// 1 and 0 where a number is expected, numbers as truth values where a
// boolean is.
func coerce(v starlark.Value, kind core.ValueKind) (starlark.Value, error) {
	switch kind {
	case core.KindNumber:
		switch x := v.(type) {
		case starlark.Float:
			return x, nil
		case starlark.Bool:
			if x {
				return starlark.Float(1), nil
			}
			return starlark.Float(0), nil
		}
	case core.KindBool:
		switch x := v.(type) {
		case starlark.Bool:
			return x, nil
		case starlark.Float:
			return starlark.Bool(x != 0), nil
		}
	case core.KindText:
		if s, ok := v.(starlark.String); ok {
			return s, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("want %s, got %s", kind, v.Type())
}

// evaluationError wraps a failed call. A done context is reported as is.
func evaluationError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return &core.EvaluationError{Err: err}
}
