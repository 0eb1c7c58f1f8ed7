// Package backend turns generated programs into callable executables.
package backend

import (
	"context"

	"github.com/leapstack-labs/leapcell/internal/codegen"
)

// Backend compiles a generated program.
type Backend interface {
	// Name identifies the backend in errors and configuration.
	Name() string

	// Compile loads prog. Failures are *core.BackendCompilationError.
	Compile(ctx context.Context, prog *codegen.Program) (Executable, error)
}

// Executable is a compiled program. It is safe for concurrent use.
type Executable interface {
	// Invoke calls the program with one argument per input, in declaration
	// order, and returns one value per output. Values are float64, bool or
	// string. Runtime failures are *core.EvaluationError.
	Invoke(ctx context.Context, args []any) ([]any, error)

	// InvokeBatch calls the program once per row, concurrently. Results
	// and errors are in row order.
	InvokeBatch(ctx context.Context, rows [][]any) ([][]any, []error)
}
