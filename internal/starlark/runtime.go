package starlark

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/leapcell/pkg/core"
)

// RuntimeModuleName is the global name generated code uses for Runtime.
const RuntimeModuleName = "_xl"

// Runtime holds the spreadsheet helpers generated code calls: aggregates
// over lists, scalar rounding and arithmetic with spreadsheet semantics,
// text joining, and lookups, statistics and criteria filters over
// row-major grids. Failures carry the spreadsheet error code (#DIV/0!,
// #NUM!, #N/A, #VALUE!, #REF!).
var Runtime = &starlarkstruct.Module{
	Name: RuntimeModuleName,
	Members: starlark.StringDict{
		"average": listBuiltin("average", average),
		"min":     listBuiltin("min", minimum),
		"max":     listBuiltin("max", maximum),
		"median":  listBuiltin("median", median),
		"sumsq":   listBuiltin("sumsq", sumsq),
		"geomean": listBuiltin("geomean", geomean),
		"harmean": listBuiltin("harmean", harmean),

		"gcd":         listBuiltin("gcd", gcd),
		"lcm":         listBuiltin("lcm", lcm),
		"multinomial": listBuiltin("multinomial", multinomial),

		"all":    starlark.NewBuiltin("all", logical(func(n, t int) bool { return t == n })),
		"any":    starlark.NewBuiltin("any", logical(func(_, t int) bool { return t > 0 })),
		"xor":    starlark.NewBuiltin("xor", logical(func(_, t int) bool { return t%2 == 1 })),
		"concat": starlark.NewBuiltin("concat", concat),

		"atan2":     binaryBuiltin("atan2", atan2),
		"log":       starlark.NewBuiltin("log", logBase),
		"log10":     unaryBuiltin("log10", log10),
		"round":     binaryBuiltin("round", round),
		"roundup":   binaryBuiltin("roundup", roundUp),
		"rounddown": binaryBuiltin("rounddown", roundDown),
		"trunc":     optionalBuiltin("trunc", 0, roundDown),
		"int":       unaryBuiltin("int", func(x float64) (float64, error) { return math.Floor(x), nil }),
		"mod":       binaryBuiltin("mod", mod),
		"quotient":  binaryBuiltin("quotient", quotient),
		"sign":      unaryBuiltin("sign", sign),
		"ceiling":   optionalBuiltin("ceiling", 1, ceiling),
		"floor":     optionalBuiltin("floor", 1, floor),
		"even":      unaryBuiltin("even", even),
		"odd":       unaryBuiltin("odd", odd),
		"iseven":    starlark.NewBuiltin("iseven", parity(0)),
		"isodd":     starlark.NewBuiltin("isodd", parity(1)),
		"fact":      unaryBuiltin("fact", fact),
		"sqrtpi":    unaryBuiltin("sqrtpi", sqrtpi),

		"factdouble": unaryBuiltin("factdouble", factdouble),
		"combin":     binaryBuiltin("combin", combin),
		"combina":    binaryBuiltin("combina", combina),
		"mround":     binaryBuiltin("mround", mround),

		"cot":   unaryBuiltin("cot", reciprocal("COT", math.Tan)),
		"coth":  unaryBuiltin("coth", reciprocal("COTH", math.Tanh)),
		"csc":   unaryBuiltin("csc", reciprocal("CSC", math.Sin)),
		"csch":  unaryBuiltin("csch", reciprocal("CSCH", math.Sinh)),
		"sec":   unaryBuiltin("sec", reciprocal("SEC", math.Cos)),
		"sech":  unaryBuiltin("sech", reciprocal("SECH", math.Cosh)),
		"acot":  unaryBuiltin("acot", acot),
		"acoth": unaryBuiltin("acoth", acoth),

		"choose":     starlark.NewBuiltin("choose", choose),
		"index":      starlark.NewBuiltin("index", index),
		"match":      starlark.NewBuiltin("match", match),
		"vlookup":    starlark.NewBuiltin("vlookup", lookup(true)),
		"hlookup":    starlark.NewBuiltin("hlookup", lookup(false)),
		"sumproduct": starlark.NewBuiltin("sumproduct", sumproduct),
		"lookup":     starlark.NewBuiltin("lookup", vectorLookup),

		"sumx2my2":  starlark.NewBuiltin("sumx2my2", pairwise(func(x, y float64) float64 { return x*x - y*y })),
		"sumxmy2":   starlark.NewBuiltin("sumxmy2", pairwise(func(x, y float64) float64 { return (x - y) * (x - y) })),
		"large":     starlark.NewBuiltin("large", kth(true)),
		"small":     starlark.NewBuiltin("small", kth(false)),
		"trimmean":  starlark.NewBuiltin("trimmean", trimmean),
		"seriessum": starlark.NewBuiltin("seriessum", seriessum),

		"averageif": starlark.NewBuiltin("averageif", averageif),
		"maxifs":    starlark.NewBuiltin("maxifs", extremeIfs(true)),
		"minifs":    starlark.NewBuiltin("minifs", extremeIfs(false)),
	},
}

// Spreadsheet error codes.
const (
	ErrCodeDiv0  = "#DIV/0!"
	ErrCodeNum   = "#NUM!"
	ErrCodeNA    = "#N/A"
	ErrCodeValue = "#VALUE!"
	ErrCodeRef   = "#REF!"
)

func xlError(code, format string, args ...any) error {
	return fmt.Errorf("%s %s", code, fmt.Sprintf(format, args...))
}

// number converts an int, float or bool to float64.
func number(v starlark.Value) (float64, error) {
	switch x := v.(type) {
	case starlark.Float:
		return float64(x), nil
	case starlark.Int:
		return float64(x.Float()), nil
	case starlark.Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, xlError(ErrCodeValue, "got %s, want number", v.Type())
}

// num is an Unpacker for number.
type num float64

func (n *num) Unpack(v starlark.Value) error {
	f, err := number(v)
	*n = num(f)
	return err
}

// numbers unpacks an iterable of numbers.
func numbers(v starlark.Value) ([]float64, error) {
	iter, ok := v.(starlark.Iterable)
	if !ok {
		return nil, xlError(ErrCodeValue, "got %s, want list", v.Type())
	}
	it := iter.Iterate()
	defer it.Done()
	var out []float64
	var x starlark.Value
	for it.Next(&x) {
		f, err := number(x)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func listBuiltin(name string, fn func([]float64) (float64, error)) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var list starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &list); err != nil {
			return nil, err
		}
		xs, err := numbers(list)
		if err != nil {
			return nil, err
		}
		return result(fn(xs))
	})
}

func unaryBuiltin(name string, fn func(float64) (float64, error)) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x num
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
			return nil, err
		}
		return result(fn(float64(x)))
	})
}

func binaryBuiltin(name string, fn func(float64, float64) (float64, error)) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x, y num
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &y); err != nil {
			return nil, err
		}
		return result(fn(float64(x), float64(y)))
	})
}

// optionalBuiltin is a binary builtin whose second argument defaults to def.
func optionalBuiltin(name string, def float64, fn func(float64, float64) (float64, error)) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		x, y := num(0), num(def)
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x, &y); err != nil {
			return nil, err
		}
		return result(fn(float64(x), float64(y)))
	})
}

func result(f float64, err error) (starlark.Value, error) {
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, xlError(ErrCodeNum, "result is not a finite number")
	}
	return starlark.Float(f), nil
}

// Aggregates.

func average(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, xlError(ErrCodeDiv0, "AVERAGE of no numbers")
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs)), nil
}

func minimum(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, nil
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m, nil
}

func maximum(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, nil
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m, nil
}

func median(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, xlError(ErrCodeNum, "MEDIAN of no numbers")
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], nil
	}
	return (sorted[mid-1] + sorted[mid]) / 2, nil
}

func sumsq(xs []float64) (float64, error) {
	var sum float64
	for _, x := range xs {
		sum += x * x
	}
	return sum, nil
}

func geomean(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, xlError(ErrCodeNum, "GEOMEAN of no numbers")
	}
	var logSum float64
	for _, x := range xs {
		if x <= 0 {
			return 0, xlError(ErrCodeNum, "GEOMEAN needs positive numbers, got %s", core.FormatNumber(x))
		}
		logSum += math.Log(x)
	}
	return math.Exp(logSum / float64(len(xs))), nil
}

func harmean(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, xlError(ErrCodeNum, "HARMEAN of no numbers")
	}
	var inv float64
	for _, x := range xs {
		if x <= 0 {
			return 0, xlError(ErrCodeNum, "HARMEAN needs positive numbers, got %s", core.FormatNumber(x))
		}
		inv += 1 / x
	}
	return float64(len(xs)) / inv, nil
}

// logical builds AND, OR and XOR from a decision over (count, true count).
func logical(decide func(n, trues int) bool) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var list starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &list); err != nil {
			return nil, err
		}
		xs, err := numbers(list)
		if err != nil {
			return nil, err
		}
		if len(xs) == 0 {
			return nil, xlError(ErrCodeValue, "%s of no logical values", strings.ToUpper(b.Name()))
		}
		trues := 0
		for _, x := range xs {
			if x != 0 {
				trues++
			}
		}
		return starlark.Bool(decide(len(xs), trues)), nil
	}
}

// Text renders a value the way string concatenation shows it.
func Text(v starlark.Value) (string, error) {
	switch x := v.(type) {
	case starlark.String:
		return string(x), nil
	case starlark.Bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case starlark.Float:
		return core.FormatNumber(float64(x)), nil
	case starlark.Int:
		return core.FormatNumber(float64(x.Float())), nil
	}
	return "", xlError(ErrCodeValue, "cannot render %s as text", v.Type())
}

func concat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var list *starlark.List
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &list); err != nil {
		return nil, err
	}
	var sb strings.Builder
	for i := 0; i < list.Len(); i++ {
		s, err := Text(list.Index(i))
		if err != nil {
			return nil, err
		}
		sb.WriteString(s)
	}
	return starlark.String(sb.String()), nil
}

// Scalars.

// clean removes binary representation noise so that 2.675*100 rounds as 267.5.
func clean(x float64) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(x, 'g', 15, 64), 64)
	if err != nil {
		return x
	}
	return f
}

func scale(digits float64) float64 {
	return math.Pow(10, math.Trunc(digits))
}

func atan2(x, y float64) (float64, error) {
	if x == 0 && y == 0 {
		return 0, xlError(ErrCodeDiv0, "ATAN2 of the origin")
	}
	return math.Atan2(y, x), nil
}

func logBase(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	x, base := num(0), num(10)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x, &base); err != nil {
		return nil, err
	}
	if x <= 0 || base <= 0 {
		return nil, xlError(ErrCodeNum, "LOG of a non-positive number")
	}
	if base == 1 {
		return nil, xlError(ErrCodeDiv0, "LOG with base 1")
	}
	return result(math.Log(float64(x))/math.Log(float64(base)), nil)
}

func log10(x float64) (float64, error) {
	if x <= 0 {
		return 0, xlError(ErrCodeNum, "LOG10 of a non-positive number")
	}
	return math.Log10(x), nil
}

// round rounds half away from zero.
func round(x, digits float64) (float64, error) {
	p := scale(digits)
	return math.Round(clean(x*p)) / p, nil
}

func roundUp(x, digits float64) (float64, error) {
	p := scale(digits)
	v := clean(x * p)
	return math.Copysign(math.Ceil(math.Abs(v)), v) / p, nil
}

func roundDown(x, digits float64) (float64, error) {
	p := scale(digits)
	return math.Trunc(clean(x*p)) / p, nil
}

// mod takes the sign of the divisor.
func mod(n, d float64) (float64, error) {
	if d == 0 {
		return 0, xlError(ErrCodeDiv0, "MOD by zero")
	}
	return n - d*math.Floor(n/d), nil
}

func quotient(n, d float64) (float64, error) {
	if d == 0 {
		return 0, xlError(ErrCodeDiv0, "QUOTIENT by zero")
	}
	return math.Trunc(n / d), nil
}

func sign(x float64) (float64, error) {
	switch {
	case x > 0:
		return 1, nil
	case x < 0:
		return -1, nil
	}
	return 0, nil
}

func ceiling(x, sig float64) (float64, error) {
	if sig == 0 {
		return 0, nil
	}
	if x > 0 && sig < 0 {
		return 0, xlError(ErrCodeNum, "CEILING of a positive number with negative significance")
	}
	return math.Ceil(clean(x/sig)) * sig, nil
}

func floor(x, sig float64) (float64, error) {
	if sig == 0 {
		return 0, xlError(ErrCodeDiv0, "FLOOR with zero significance")
	}
	if x > 0 && sig < 0 {
		return 0, xlError(ErrCodeNum, "FLOOR of a positive number with negative significance")
	}
	return math.Floor(clean(x/sig)) * sig, nil
}

func even(x float64) (float64, error) {
	return math.Copysign(math.Ceil(math.Abs(x)/2)*2, x), nil
}

func odd(x float64) (float64, error) {
	s := 1.0
	if x < 0 {
		s = -1
	}
	n := math.Ceil((math.Abs(x)-1)/2)*2 + 1
	return s * n, nil
}

func parity(rem float64) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x num
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
			return nil, err
		}
		r := math.Abs(math.Mod(math.Trunc(float64(x)), 2))
		return starlark.Bool(r == rem), nil
	}
}

func fact(x float64) (float64, error) {
	if x < 0 {
		return 0, xlError(ErrCodeNum, "FACT of a negative number")
	}
	n := math.Floor(x)
	if n > 170 {
		return 0, xlError(ErrCodeNum, "FACT overflows")
	}
	f := 1.0
	for i := 2.0; i <= n; i++ {
		f *= i
	}
	return f, nil
}

func sqrtpi(x float64) (float64, error) {
	if x < 0 {
		return 0, xlError(ErrCodeNum, "SQRTPI of a negative number")
	}
	return math.Sqrt(x * math.Pi), nil
}

// Lookups. Tables arrive as lists of rows.

type grid [][]starlark.Value

func toGrid(v starlark.Value) (grid, error) {
	rows, ok := v.(*starlark.List)
	if !ok {
		return nil, xlError(ErrCodeValue, "got %s, want table", v.Type())
	}
	g := make(grid, rows.Len())
	for i := range g {
		row, ok := rows.Index(i).(*starlark.List)
		if !ok {
			return nil, xlError(ErrCodeValue, "table row %d is %s", i+1, rows.Index(i).Type())
		}
		g[i] = make([]starlark.Value, row.Len())
		for j := range g[i] {
			g[i][j] = row.Index(j)
		}
	}
	if len(g) == 0 || len(g[0]) == 0 {
		return nil, xlError(ErrCodeRef, "empty table")
	}
	return g, nil
}

func (g grid) rows() int { return len(g) }
func (g grid) cols() int { return len(g[0]) }

// vector returns a one-row or one-column table as a flat list.
func (g grid) vector() ([]starlark.Value, bool) {
	switch {
	case g.rows() == 1:
		return g[0], true
	case g.cols() == 1:
		out := make([]starlark.Value, g.rows())
		for i, row := range g {
			out[i] = row[0]
		}
		return out, true
	}
	return nil, false
}

func position(v starlark.Value, what string, limit int) (int, error) {
	f, err := number(v)
	if err != nil {
		return 0, err
	}
	i := int(math.Trunc(f))
	if i < 1 || i > limit {
		return 0, xlError(ErrCodeRef, "%s %d is outside 1..%d", what, i, limit)
	}
	return i, nil
}

// equal compares like spreadsheets do for lookups: numbers by value, text
// case-insensitively, and values of different kinds never match.
func equal(a, b starlark.Value) bool {
	if sa, ok := a.(starlark.String); ok {
		sb, ok := b.(starlark.String)
		return ok && strings.EqualFold(string(sa), string(sb))
	}
	if ba, ok := a.(starlark.Bool); ok {
		bb, ok := b.(starlark.Bool)
		return ok && ba == bb
	}
	if _, ok := b.(starlark.Bool); ok {
		return false
	}
	fa, errA := number(a)
	fb, errB := number(b)
	return errA == nil && errB == nil && fa == fb
}

// compare orders values of the same kind; ok is false across kinds.
func compare(a, b starlark.Value) (c int, ok bool) {
	if sa, isStr := a.(starlark.String); isStr {
		sb, isStr := b.(starlark.String)
		if !isStr {
			return 0, false
		}
		return strings.Compare(strings.ToLower(string(sa)), strings.ToLower(string(sb))), true
	}
	if equal(a, b) {
		return 0, true
	}
	_, aBool := a.(starlark.Bool)
	_, bBool := b.(starlark.Bool)
	if aBool != bBool {
		return 0, false
	}
	fa, errA := number(a)
	fb, errB := number(b)
	if errA != nil || errB != nil {
		return 0, false
	}
	if fa < fb {
		return -1, true
	}
	return 1, true
}

// find returns the 1-based position of v in list. mode 0 is an exact
// match, 1 the largest item <= v in an ascending list and -1 the smallest
// item >= v in a descending list.
func find(v starlark.Value, list []starlark.Value, mode int) (int, error) {
	found := 0
scan:
	for i, item := range list {
		if mode == 0 {
			if equal(v, item) {
				return i + 1, nil
			}
			continue
		}
		c, ok := compare(item, v)
		switch {
		case !ok:
		case c == 0:
			return i + 1, nil
		case c*mode < 0:
			found = i + 1
		default:
			break scan
		}
	}
	if found > 0 {
		return found, nil
	}
	s, _ := Text(v)
	return 0, xlError(ErrCodeNA, "no match for %s", s)
}

func choose(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		i    starlark.Value
		list *starlark.List
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &i, &list); err != nil {
		return nil, err
	}
	n, err := position(i, "CHOOSE index", list.Len())
	if err != nil {
		return nil, err
	}
	return list.Index(n - 1), nil
}

func index(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var table, row, col starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &table, &row, &col); err != nil {
		return nil, err
	}
	g, err := toGrid(table)
	if err != nil {
		return nil, err
	}
	if col == nil || col == starlark.None {
		switch {
		case g.rows() == 1:
			row, col = starlark.MakeInt(1), row
		case g.cols() == 1:
			col = starlark.MakeInt(1)
		default:
			return nil, xlError(ErrCodeRef, "INDEX on a table needs a column")
		}
	}
	r, err := position(row, "INDEX row", g.rows())
	if err != nil {
		return nil, err
	}
	c, err := position(col, "INDEX column", g.cols())
	if err != nil {
		return nil, err
	}
	return g[r-1][c-1], nil
}

func match(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		v, table starlark.Value
		mode     = num(1)
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &v, &table, &mode); err != nil {
		return nil, err
	}
	g, err := toGrid(table)
	if err != nil {
		return nil, err
	}
	list, ok := g.vector()
	if !ok {
		return nil, xlError(ErrCodeNA, "MATCH needs a single row or column")
	}
	m := 0
	switch {
	case mode > 0:
		m = 1
	case mode < 0:
		m = -1
	}
	i, err := find(v, list, m)
	if err != nil {
		return nil, err
	}
	return starlark.Float(i), nil
}

// lookup implements VLOOKUP (vertical) and HLOOKUP.
func lookup(vertical bool) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			v, table, at starlark.Value
			approx       starlark.Value = starlark.True
		)
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &v, &table, &at, &approx); err != nil {
			return nil, err
		}
		g, err := toGrid(table)
		if err != nil {
			return nil, err
		}
		mode := 0
		if f, err := number(approx); err == nil && f != 0 {
			mode = 1
		}

		var keys []starlark.Value
		limit := g.rows()
		if vertical {
			limit = g.cols()
			for _, row := range g {
				keys = append(keys, row[0])
			}
		} else {
			keys = g[0]
		}
		n, err := position(at, "lookup index", limit)
		if err != nil {
			return nil, err
		}
		i, err := find(v, keys, mode)
		if err != nil {
			return nil, err
		}
		if vertical {
			return g[i-1][n-1], nil
		}
		return g[n-1][i-1], nil
	}
}

func sumproduct(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var tables *starlark.List
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &tables); err != nil {
		return nil, err
	}
	grids := make([]grid, tables.Len())
	for i := range grids {
		g, err := toGrid(tables.Index(i))
		if err != nil {
			return nil, err
		}
		if i > 0 && (g.rows() != grids[0].rows() || g.cols() != grids[0].cols()) {
			return nil, xlError(ErrCodeValue, "SUMPRODUCT ranges differ in size")
		}
		grids[i] = g
	}
	if len(grids) == 0 {
		return nil, errors.New("SUMPRODUCT needs at least one range")
	}

	var sum float64
	for r := 0; r < grids[0].rows(); r++ {
		for c := 0; c < grids[0].cols(); c++ {
			p := 1.0
			for _, g := range grids {
				f, err := number(g[r][c])
				if err != nil {
					f = 0
				}
				p *= f
			}
			sum += p
		}
	}
	return starlark.Float(sum), nil
}
