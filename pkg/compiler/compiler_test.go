package compiler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapcell/internal/testutil"
	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/functions"
	"github.com/leapstack-labs/leapcell/pkg/workbook"
)

// sheet builds a workbook with one sheet named Sheet1.
func sheet(t *testing.T, cells map[string]string) *workbook.Store {
	t.Helper()
	wb := workbook.New()
	require.NoError(t, wb.AddSheet("Sheet1"))
	for ref, raw := range cells {
		require.NoError(t, wb.SetRaw("Sheet1", ref, raw))
	}
	return wb
}

func newCompiler(t *testing.T, cells map[string]string, opts ...Option) *Compiler {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)
	return New(sheet(t, cells), opts...)
}

func compileLinear(t *testing.T, opts ...Option) *Artifact {
	t.Helper()
	c := newCompiler(t, map[string]string{"A1": "3", "B1": "=A1*2+1"}, opts...)
	require.NoError(t, c.AddInput("Sheet1", "A1", "x"))
	require.NoError(t, c.AddOutput("Sheet1", "B1", "y"))
	art, err := c.Compile(context.Background())
	require.NoError(t, err)
	return art
}

func TestCompile_RoundTrip(t *testing.T) {
	art := compileLinear(t)

	tests := []struct {
		x    any
		want float64
	}{
		{3, 7},
		{0, 1},
		{2.5, 6},
		{-1, -1},
	}
	for _, tt := range tests {
		out, err := art.Call(context.Background(), map[string]any{"x": tt.x})
		require.NoError(t, err)
		got, err := out.Float("y")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "x=%v", tt.x)
	}

	assert.Equal(t, "starlark", art.Backend())
	assert.NotEmpty(t, art.ID().String())
	assert.Contains(t, art.Source(), "def evaluate(x):")
	require.Len(t, art.Inputs(), 1)
	assert.Equal(t, Binding{Name: "x", Address: core.Address{Sheet: "Sheet1", Col: 1, Row: 1}, Kind: core.KindNumber}, art.Inputs()[0])
	assert.Equal(t, "y", art.Outputs()[0].Name)
}

func TestCompile_WithoutInputs(t *testing.T) {
	c := newCompiler(t, map[string]string{"A1": "3", "B1": "=A1*2+1", "C1": "=B1>5"})
	require.NoError(t, c.AddOutput("Sheet1", "B1", "y"))
	require.NoError(t, c.AddOutput("Sheet1", "C1", "big"))

	art, err := c.Compile(context.Background())
	require.NoError(t, err)
	assert.Contains(t, art.Source(), "def evaluate():")

	out, err := art.CallValues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "big"}, out.Names())
	assert.Equal(t, []any{7.0, true}, out.Values())
	assert.Equal(t, map[string]any{"y": 7.0, "big": true}, out.Map())

	big, err := out.Float("big")
	require.NoError(t, err)
	assert.Equal(t, 1.0, big)

	_, ok := out.Get("missing")
	assert.False(t, ok)
	_, err = out.Float("missing")
	assert.Error(t, err)
}

func TestCompile_Deterministic(t *testing.T) {
	cells := map[string]string{
		"A1": "1", "A2": "2", "A3": "3",
		"B1": "=SUM(A1:A3)",
		"B2": "=B1*A2",
		"C1": "=IF(B2>10, B2, B1)",
	}
	source := func() string {
		c := newCompiler(t, cells)
		require.NoError(t, c.AddInput("Sheet1", "A2", "scale"))
		require.NoError(t, c.AddOutput("Sheet1", "C1", "result"))
		src, err := c.GenerateSource(context.Background())
		require.NoError(t, err)
		return src
	}

	first := source()
	for range 5 {
		assert.Equal(t, first, source())
	}
}

func TestCompile_Reachability(t *testing.T) {
	c := newCompiler(t, map[string]string{
		"A1": "3",
		"B1": "=A1*2+1",
		// unreachable cells are never parsed
		"C1": "=NOSUCH(",
		"D1": "=D1+1",
	})
	require.NoError(t, c.AddInput("Sheet1", "A1", "x"))
	require.NoError(t, c.AddOutput("Sheet1", "B1", "y"))

	plan, err := c.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Address{
		{Sheet: "Sheet1", Col: 1, Row: 1},
		{Sheet: "Sheet1", Col: 2, Row: 1},
	}, plan.Order)
	assert.Equal(t, 1, plan.Formulas)
	require.Len(t, plan.Levels, 2)
	assert.Equal(t, []core.Address{{Sheet: "Sheet1", Col: 1, Row: 1}}, plan.Dependencies(core.Address{Sheet: "Sheet1", Col: 2, Row: 1}))

	art, err := c.Compile(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, art.Source(), "sheet1_c1")
	assert.NotContains(t, art.Source(), "sheet1_d1")
}

func TestCompile_ParseCache(t *testing.T) {
	c := newCompiler(t, map[string]string{"A1": "3", "B1": "=A1*2+1", "C1": "=B1+A1"})
	require.NoError(t, c.AddOutput("Sheet1", "C1", "z"))

	plan, err := c.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Formulas)
	assert.Zero(t, plan.CacheHits)

	plan, err = c.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, plan.CacheHits)
}

func TestCompile_Cycle(t *testing.T) {
	c := newCompiler(t, map[string]string{"A1": "=B1", "B1": "=A1+1", "C1": "=B1"})
	require.NoError(t, c.AddOutput("Sheet1", "C1", "out"))

	_, err := c.Compile(context.Background())
	require.ErrorIs(t, err, core.ErrCircularReference)
	var cycle *core.CircularReferenceError
	require.ErrorAs(t, err, &cycle)
	assert.Len(t, cycle.Cycle, 2)
}

func TestCompile_InputBreaksCycle(t *testing.T) {
	c := newCompiler(t, map[string]string{"A1": "=B1", "B1": "=A1+1"})
	require.NoError(t, c.AddInput("Sheet1", "A1", "seed"))
	require.NoError(t, c.AddOutput("Sheet1", "B1", "next"))

	art, err := c.Compile(context.Background())
	require.NoError(t, err)
	out, err := art.Call(context.Background(), map[string]any{"seed": 41})
	require.NoError(t, err)
	assert.Equal(t, []any{42.0}, out.Values())
}

func TestCompile_InputOverridesFormula(t *testing.T) {
	// C9 does not exist; an input's own formula is never resolved
	c := newCompiler(t, map[string]string{"A1": "=C9*100", "B1": "=A1*2+1"})
	require.NoError(t, c.AddInput("Sheet1", "A1", "x"))
	require.NoError(t, c.AddOutput("Sheet1", "B1", "y"))

	art, err := c.Compile(context.Background())
	require.NoError(t, err)
	out, err := art.Call(context.Background(), map[string]any{"x": 5})
	require.NoError(t, err)
	assert.Equal(t, []any{11.0}, out.Values())
}

func TestCompile_InputAsOutput(t *testing.T) {
	c := newCompiler(t, map[string]string{"A1": "2", "B1": "=A1^2"})
	require.NoError(t, c.AddInput("Sheet1", "A1", "x"))
	require.NoError(t, c.AddOutput("Sheet1", "A1", "echo"))
	require.NoError(t, c.AddOutput("Sheet1", "B1", "square"))

	art, err := c.Compile(context.Background())
	require.NoError(t, err)
	out, err := art.Call(context.Background(), map[string]any{"x": 3})
	require.NoError(t, err)
	assert.Equal(t, []any{3.0, 9.0}, out.Values())
}

func TestBindings(t *testing.T) {
	c := newCompiler(t, map[string]string{"A1": "1", "B1": "=A1"})

	require.NoError(t, c.AddInput("Sheet1", "A1", "x"))

	err := c.AddInput("Sheet1", "A1", "other")
	var dup *core.DuplicateBindingError
	require.ErrorAs(t, err, &dup)
	assert.False(t, dup.ByName)
	assert.Equal(t, "x", dup.Existing)

	err = c.AddInput("Sheet1", "B1", "x")
	require.ErrorAs(t, err, &dup)
	assert.True(t, dup.ByName)
	assert.Equal(t, core.RoleInput, dup.Role)

	// roles are independent
	require.NoError(t, c.AddOutput("Sheet1", "A1", "x"))
	assert.ErrorIs(t, c.AddOutput("Sheet1", "$A$1", "again"), core.ErrDuplicateBinding)

	tests := []struct {
		name    string
		address string
		binding string
	}{
		{"leading digit", "C1", "1x"},
		{"leading underscore", "C1", "_x"},
		{"keyword", "C1", "lambda"},
		{"runtime global", "C1", "math"},
		{"dash", "C1", "a-b"},
		{"bad address", "1A", "fine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.AddInput("Sheet1", tt.address, tt.binding)
			assert.ErrorIs(t, err, core.ErrInvalidBinding)
		})
	}

	assert.Len(t, c.Inputs(), 1)
	assert.Len(t, c.Outputs(), 1)
}

func TestCompile_MissingOutput(t *testing.T) {
	c := newCompiler(t, map[string]string{"A1": "1"})
	require.NoError(t, c.AddInput("Sheet1", "A1", "x"))

	_, err := c.Compile(context.Background())
	assert.ErrorIs(t, err, core.ErrMissingOutput)
	_, err = c.GenerateSource(context.Background())
	assert.ErrorIs(t, err, core.ErrMissingOutput)
}

func TestCompile_UserFunction(t *testing.T) {
	reg := functions.Default()
	require.NoError(t, reg.RegisterFunc("DOUBLE", core.Exactly(1), func(args ...float64) (float64, error) {
		return args[0] * 2, nil
	}))

	c := newCompiler(t, map[string]string{"A1": "5", "B1": "=DOUBLE(A1)"}, WithFunctions(reg))
	require.NoError(t, c.AddInput("Sheet1", "A1", "x"))
	require.NoError(t, c.AddOutput("Sheet1", "B1", "y"))

	art, err := c.Compile(context.Background())
	require.NoError(t, err)
	out, err := art.Call(context.Background(), map[string]any{"x": 5})
	require.NoError(t, err)
	assert.Equal(t, []any{10.0}, out.Values())
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		cells map[string]string
		want  error
	}{
		{"unknown function", map[string]string{"B1": "=TWICE(A1)", "A1": "1"}, core.ErrUnsupportedFunction},
		{"malformed formula", map[string]string{"B1": "=A1+*2", "A1": "1"}, core.ErrParse},
		{"blank reference", map[string]string{"B1": "=A1+1"}, core.ErrUnresolvedReference},
		{"unknown sheet", map[string]string{"B1": "=Other!A1"}, core.ErrUnresolvedReference},
		{"range outside aggregate", map[string]string{"B1": "=A1:A2+1", "A1": "1", "A2": "2"}, core.ErrUnsupportedExpr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCompiler(t, tt.cells)
			require.NoError(t, c.AddOutput("Sheet1", "B1", "y"))
			art, err := c.Compile(context.Background())
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, art)
		})
	}
}

func TestCompile_BlankCellsAsZero(t *testing.T) {
	c := newCompiler(t, map[string]string{"B1": "=A1+1"}, WithBlankCellsAsZero())
	require.NoError(t, c.AddOutput("Sheet1", "B1", "y"))

	art, err := c.Compile(context.Background())
	require.NoError(t, err)
	out, err := art.CallValues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, out.Values())
}

func TestCompile_ConstantFolding(t *testing.T) {
	source := func(opts ...Option) string {
		c := newCompiler(t, map[string]string{"A1": "=1+2"}, opts...)
		require.NoError(t, c.AddOutput("Sheet1", "A1", "y"))
		src, err := c.GenerateSource(context.Background())
		require.NoError(t, err)
		return src
	}
	assert.Contains(t, source(), "sheet1_a1 = 3.0\n")
	assert.Contains(t, source(WithoutConstantFolding()), "sheet1_a1 = 1.0 + 2.0\n")
}

func TestCall_Inputs(t *testing.T) {
	art := compileLinear(t)

	_, err := art.Call(context.Background(), map[string]any{})
	var missing *core.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"x"}, missing.Names)

	_, err = art.Call(context.Background(), map[string]any{"x": 1, "z": 2})
	assert.ErrorIs(t, err, core.ErrInvalidBinding)

	_, err = art.CallValues(context.Background(), 1, 2)
	assert.ErrorContains(t, err, "expected 1 inputs, got 2")

	_, err = art.CallValues(context.Background(), "three")
	assert.ErrorContains(t, err, "want number")

	defaults := compileLinear(t, WithCellDefaults())
	out, err := defaults.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{7.0}, out.Values())
}

func TestCall_EvaluationError(t *testing.T) {
	c := newCompiler(t, map[string]string{"A1": "1", "B1": "=1/A1"})
	require.NoError(t, c.AddInput("Sheet1", "A1", "x"))
	require.NoError(t, c.AddOutput("Sheet1", "B1", "y"))
	art, err := c.Compile(context.Background())
	require.NoError(t, err)

	_, err = art.Call(context.Background(), map[string]any{"x": 0})
	assert.ErrorIs(t, err, core.ErrEvaluation)

	out, err := art.Call(context.Background(), map[string]any{"x": 4})
	require.NoError(t, err)
	assert.Equal(t, []any{0.25}, out.Values())
}

func TestCall_Batch(t *testing.T) {
	art := compileLinear(t)

	rows := []map[string]any{
		{"x": 1},
		{},
		{"x": "bad"},
		{"x": 10},
	}
	results, errs := art.CallBatch(context.Background(), rows)
	require.Len(t, results, 4)

	require.NoError(t, errs[0])
	assert.Equal(t, []any{3.0}, results[0].Values())
	assert.ErrorIs(t, errs[1], core.ErrMissingInput)
	assert.Error(t, errs[2])
	assert.Nil(t, results[2])
	require.NoError(t, errs[3])
	assert.Equal(t, []any{21.0}, results[3].Values())
}

func TestCall_Concurrent(t *testing.T) {
	art := compileLinear(t)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := art.Call(context.Background(), map[string]any{"x": i})
			if err != nil {
				errs <- err
				return
			}
			if got, _ := out.Float("y"); got != float64(2*i+1) {
				errs <- errors.New("wrong result")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCompile_Cancelled(t *testing.T) {
	c := newCompiler(t, map[string]string{"A1": "3", "B1": "=A1*2+1"})
	require.NoError(t, c.AddOutput("Sheet1", "B1", "y"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	art, err := c.Compile(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, art)
}
