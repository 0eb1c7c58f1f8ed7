package starlark

import (
	"fmt"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapcell/internal/codegen"
	"github.com/leapstack-labs/leapcell/pkg/functions"
)

// UserBuiltin wraps a user function as a Starlark builtin named global.
// Arguments are converted to floats and the result must be finite. The
// function sees the context of the calling thread.
func UserBuiltin(global string, u *functions.UserDefined) *starlark.Builtin {
	return starlark.NewBuiltin(global, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
		}
		in := make([]float64, len(args))
		for i, a := range args {
			f, err := ToFloat(a)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", u.Name(), i+1, err)
			}
			in[i] = f
		}
		return result(u.CallContext(ThreadContext(thread), in...))
	})
}

// Predeclared returns the globals a generated program reads: the math
// module, the runtime module and one builtin per referenced user function.
func Predeclared(udfs []codegen.UserFunction) starlark.StringDict {
	globals := starlark.StringDict{
		"math":            starlarkmath.Module,
		RuntimeModuleName: Runtime,
	}
	for _, u := range udfs {
		globals[u.Global] = UserBuiltin(u.Global, u.Func)
	}
	return globals
}
