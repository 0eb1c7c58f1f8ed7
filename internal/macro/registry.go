package macro

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"

	starctx "github.com/leapstack-labs/leapcell/internal/starlark"
	"github.com/leapstack-labs/leapcell/pkg/functions"
)

// UserFunctions converts the exports of m into user-defined functions.
// Each call runs on a thread from pool, stops when the calling evaluation
// is cancelled and must return a number.
func (m *LoadedModule) UserFunctions(pool *starctx.ThreadPool) []*functions.UserDefined {
	out := make([]*functions.UserDefined, 0, len(m.Functions))
	for _, parsed := range m.Functions {
		u := functions.NewUserDefinedContext(parsed.Name, parsed.Arity(), call(pool, m.Namespace+"."+parsed.Name, m.Exports[parsed.Name]))
		u.Doc = parsed.Docstring
		if u.Doc == "" {
			u.Doc = parsed.Signature()
		}
		u.Source = fmt.Sprintf("%s:%d", m.Path, parsed.Line)
		out = append(out, u)
	}
	return out
}

func call(pool *starctx.ThreadPool, name string, fn *starlark.Function) functions.ContextFunc {
	return func(ctx context.Context, args ...float64) (float64, error) {
		in := make(starlark.Tuple, len(args))
		for i, a := range args {
			in[i] = starlark.Float(a)
		}
		v, err := pool.Call(ctx, name, fn, in)
		if err != nil {
			return 0, err
		}
		f, err := starctx.ToFloat(v)
		if err != nil {
			return 0, fmt.Errorf("%s: result: %w", name, err)
		}
		return f, nil
	}
}

// Register loads every .star file of the loader's directory and registers
// its functions into reg. It returns the number of functions registered.
func (l *Loader) Register(reg *functions.Registry) (int, error) {
	modules, err := l.Load()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range modules {
		for _, u := range m.UserFunctions(l.pool) {
			if err := reg.Register(u); err != nil {
				return n, fmt.Errorf("%s: %w", u.Source, err)
			}
			n++
		}
	}
	return n, nil
}

// LoadFunctions registers the functions defined under dir into reg.
func LoadFunctions(dir string, reg *functions.Registry, pool *starctx.ThreadPool) (int, error) {
	return NewLoader(dir, pool, nil).Register(reg)
}
