package starlark

import (
	"context"
	"errors"
	"fmt"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ExecutionContext is an executed, frozen Starlark module exposing one entry
// function. It is safe for concurrent calls.
type ExecutionContext struct {
	// Filename names the module in errors and backtraces.
	Filename string

	globals starlark.StringDict
	entry   *starlark.Function
	pool    *ThreadPool
}

// Load executes src with the given predeclared globals, freezes the
// resulting module and looks up the entry function.
func Load(filename, src, entry string, predeclared starlark.StringDict, pool *ThreadPool) (*ExecutionContext, error) {
	if pool == nil {
		pool = NewThreadPool(0, nil)
	}

	thread := pool.Get(filename)
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, predeclared)
	pool.Put(thread)
	if err != nil {
		return nil, errorFrom(filename, err)
	}
	globals.Freeze()

	value, ok := globals[entry]
	if !ok {
		return nil, fmt.Errorf("%s: entry function %q is not defined", filename, entry)
	}
	fn, ok := value.(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("%s: %q is a %s, not a function", filename, entry, value.Type())
	}

	return &ExecutionContext{Filename: filename, globals: globals, entry: fn, pool: pool}, nil
}

// Globals returns the frozen module globals.
func (c *ExecutionContext) Globals() starlark.StringDict {
	return c.globals
}

// Params returns the parameter names of the entry function.
func (c *ExecutionContext) Params() []string {
	names := make([]string, c.entry.NumParams())
	for i := range names {
		names[i], _ = c.entry.Param(i)
	}
	return names
}

// Call invokes the entry function and returns its result tuple.
// Failures inside the module are reported as *EvalError.
func (c *ExecutionContext) Call(ctx context.Context, args starlark.Tuple) (starlark.Tuple, error) {
	if len(args) != c.entry.NumParams() {
		return nil, fmt.Errorf("%s: expects %d arguments, got %d", c.entry.Name(), c.entry.NumParams(), len(args))
	}
	value, err := c.pool.Call(ctx, c.Filename, c.entry, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, errorFrom(c.Filename, err)
	}
	tuple, ok := value.(starlark.Tuple)
	if !ok {
		return nil, fmt.Errorf("%s: returned %s, want tuple", c.entry.Name(), value.Type())
	}
	return tuple, nil
}

// Executor returns a ParallelExecutor over the entry function.
func (c *ExecutionContext) Executor(maxConcurrency int) *ParallelExecutor {
	return NewParallelExecutor(c.pool, c.entry, maxConcurrency)
}

// EvalError is a failure while executing generated code.
type EvalError struct {
	File    string
	Line    int
	Message string
	// Backtrace is the Starlark call stack, when available.
	Backtrace string
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

func errorFrom(filename string, err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		out := &EvalError{File: filename, Message: evalErr.Msg, Backtrace: evalErr.Backtrace()}
		for i := range evalErr.CallStack {
			// builtin frames have no line
			if line := evalErr.CallStack.At(i).Pos.Line; line > 0 {
				out.Line = int(line)
				break
			}
		}
		return out
	}
	var syntaxErr syntax.Error
	if errors.As(err, &syntaxErr) {
		return &EvalError{File: filename, Line: int(syntaxErr.Pos.Line), Message: syntaxErr.Msg}
	}
	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) && len(resolveErrs) > 0 {
		first := resolveErrs[0]
		return &EvalError{File: filename, Line: int(first.Pos.Line), Message: first.Msg}
	}
	return &EvalError{File: filename, Message: err.Error()}
}
