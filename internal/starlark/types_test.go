package starlark

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapcell/internal/codegen"
	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/functions"
)

func TestToStarlark(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    starlark.Value
		wantErr bool
	}{
		{name: "float64", input: 3.5, want: starlark.Float(3.5)},
		{name: "int becomes float", input: 42, want: starlark.Float(42)},
		{name: "int64", input: int64(-7), want: starlark.Float(-7)},
		{name: "bool", input: true, want: starlark.True},
		{name: "string", input: "hello", want: starlark.String("hello")},
		{name: "core number", input: core.Number(2), want: starlark.Float(2)},
		{name: "core text", input: core.Text("x"), want: starlark.String("x")},
		{name: "core formula", input: core.Formula("=A1"), wantErr: true},
		{name: "nil", input: nil, wantErr: true},
		{name: "slice", input: []string{"a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToStarlark(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToGo(t *testing.T) {
	tests := []struct {
		name    string
		input   starlark.Value
		want    any
		wantErr bool
	}{
		{name: "float", input: starlark.Float(1.5), want: 1.5},
		{name: "int", input: starlark.MakeInt(3), want: 3.0},
		{name: "bool", input: starlark.False, want: false},
		{name: "string", input: starlark.String("s"), want: "s"},
		{name: "none", input: starlark.None, wantErr: true},
		{name: "list", input: starlark.NewList(nil), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToGo(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToFloat(t *testing.T) {
	f, err := ToFloat(starlark.True)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f)

	f, err = ToFloat(starlark.MakeInt(-4))
	require.NoError(t, err)
	assert.Equal(t, -4.0, f)

	_, err = ToFloat(starlark.String("1"))
	assert.Error(t, err)
}

func TestPredeclared_UserFunctions(t *testing.T) {
	double := functions.NewUserDefined("double", core.Exactly(1), func(args ...float64) (float64, error) {
		return args[0] * 2, nil
	})
	broken := functions.NewUserDefined("broken", core.Exactly(0), func(...float64) (float64, error) {
		return 0, errors.New("no luck")
	})
	globals := Predeclared([]codegen.UserFunction{
		{Global: "_udf_double", Func: double},
		{Global: "_udf_broken", Func: broken},
	})

	assert.Contains(t, globals, "math")
	assert.Contains(t, globals, RuntimeModuleName)

	ec, err := Load("udf.star", `
def evaluate(x):
    return (_udf_double(x), _udf_double(True))

def fails():
    return _udf_broken()
`, "evaluate", globals, nil)
	require.NoError(t, err)

	out, err := ec.Call(context.Background(), starlark.Tuple{starlark.Float(21)})
	require.NoError(t, err)
	assert.Equal(t, starlark.Tuple{starlark.Float(42), starlark.Float(2)}, out)

	_, err = starlark.Call(&starlark.Thread{}, ec.Globals()["fails"], nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no luck")

	_, err = ec.Call(context.Background(), starlark.Tuple{starlark.String("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want number")
}

func TestUserBuiltin_SeesCallContext(t *testing.T) {
	type key struct{}
	var seen any
	tag := functions.NewUserDefinedContext("tag", core.Exactly(1), func(ctx context.Context, args ...float64) (float64, error) {
		seen = ctx.Value(key{})
		return args[0], ctx.Err()
	})
	globals := Predeclared([]codegen.UserFunction{{Global: "_udf_tag", Func: tag}})

	ec, err := Load("ctx.star", `
def evaluate(x):
    return (_udf_tag(x),)
`, "evaluate", globals, nil)
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), key{}, "outer")
	out, err := ec.Call(ctx, starlark.Tuple{starlark.Float(3)})
	require.NoError(t, err)
	assert.Equal(t, starlark.Tuple{starlark.Float(3)}, out)
	assert.Equal(t, "outer", seen)

	// a thread outside any call runs with a background context
	assert.Equal(t, context.Background(), ThreadContext(&starlark.Thread{}))
}

func TestLoad_Errors(t *testing.T) {
	t.Run("syntax", func(t *testing.T) {
		_, err := Load("bad.star", "def evaluate(:\n", "evaluate", Predeclared(nil), nil)
		var evalErr *EvalError
		require.ErrorAs(t, err, &evalErr)
		assert.Equal(t, "bad.star", evalErr.File)
		assert.Equal(t, 1, evalErr.Line)
	})

	t.Run("missing entry", func(t *testing.T) {
		_, err := Load("empty.star", "x = 1\n", "evaluate", Predeclared(nil), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not defined")
	})

	t.Run("entry is not a function", func(t *testing.T) {
		_, err := Load("value.star", "evaluate = 1\n", "evaluate", Predeclared(nil), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a function")
	})
}

func TestExecutionContext_Call(t *testing.T) {
	ec := loadEntry(t, `
def evaluate(x, y):
    if y == 0:
        fail("#DIV/0! division by zero")
    return (x / y, x > y)
`)
	assert.Equal(t, []string{"x", "y"}, ec.Params())

	out, err := ec.Call(context.Background(), starlark.Tuple{starlark.Float(6), starlark.Float(3)})
	require.NoError(t, err)
	assert.Equal(t, starlark.Tuple{starlark.Float(2), starlark.True}, out)

	_, err = ec.Call(context.Background(), starlark.Tuple{starlark.Float(6), starlark.Float(0)})
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Message, "#DIV/0!")
	assert.Equal(t, 4, evalErr.Line)
	assert.Contains(t, evalErr.Backtrace, "evaluate")

	_, err = ec.Call(context.Background(), starlark.Tuple{starlark.Float(6)})
	assert.ErrorContains(t, err, "expects 2 arguments")
}
