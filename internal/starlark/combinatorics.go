package starlark

import (
	"math"
	"strings"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapcell/pkg/core"
)

// maxExact is the largest integer a float64 holds exactly.
const maxExact = 1 << 53

// naturals truncates xs to integers, which must be non-negative.
func naturals(name string, xs []float64) ([]float64, error) {
	out := make([]float64, len(xs))
	for i, x := range xs {
		t := math.Trunc(x)
		if t < 0 || t > maxExact {
			return nil, xlError(ErrCodeNum, "%s needs non-negative integers, got %s", name, core.FormatNumber(x))
		}
		out[i] = t
	}
	return out, nil
}

func euclid(a, b float64) float64 {
	for b != 0 {
		a, b = b, math.Mod(a, b)
	}
	return a
}

func gcd(xs []float64) (float64, error) {
	ints, err := naturals("GCD", xs)
	if err != nil {
		return 0, err
	}
	g := 0.0
	for _, x := range ints {
		g = euclid(g, x)
	}
	return g, nil
}

func lcm(xs []float64) (float64, error) {
	ints, err := naturals("LCM", xs)
	if err != nil {
		return 0, err
	}
	l := 1.0
	for _, x := range ints {
		if x == 0 {
			return 0, nil
		}
		l = l / euclid(l, x) * x
	}
	return l, nil
}

// binomial is n choose k for integers 0 <= k <= n.
func binomial(n, k float64) float64 {
	k = math.Min(k, n-k)
	r := 1.0
	for i := 1.0; i <= k; i++ {
		r = r * (n - k + i) / i
	}
	return math.Round(r)
}

func combin(n, k float64) (float64, error) {
	n, k = math.Trunc(n), math.Trunc(k)
	if n < 0 || k < 0 || n < k {
		return 0, xlError(ErrCodeNum, "COMBIN(%s, %s) is undefined", core.FormatNumber(n), core.FormatNumber(k))
	}
	return binomial(n, k), nil
}

// combina counts combinations with repetition: COMBIN(n+k-1, k).
func combina(n, k float64) (float64, error) {
	n, k = math.Trunc(n), math.Trunc(k)
	switch {
	case n < 0 || k < 0:
		return 0, xlError(ErrCodeNum, "COMBINA(%s, %s) is undefined", core.FormatNumber(n), core.FormatNumber(k))
	case k == 0:
		return 1, nil
	case n == 0:
		return 0, nil
	}
	return binomial(n+k-1, k), nil
}

// multinomial is (a+b+...)! / (a! b! ...), built from binomials to stay
// in range longer.
func multinomial(xs []float64) (float64, error) {
	ints, err := naturals("MULTINOMIAL", xs)
	if err != nil {
		return 0, err
	}
	r, total := 1.0, 0.0
	for _, x := range ints {
		total += x
		r *= binomial(total, x)
	}
	return r, nil
}

func factdouble(x float64) (float64, error) {
	n := math.Trunc(x)
	switch {
	case n < -1:
		return 0, xlError(ErrCodeNum, "FACTDOUBLE of %s", core.FormatNumber(x))
	case n > 300:
		return 0, xlError(ErrCodeNum, "FACTDOUBLE overflows")
	}
	r := 1.0
	for i := n; i > 1; i -= 2 {
		r *= i
	}
	return r, nil
}

// mround rounds half away from zero to a multiple of m, which must have
// the sign of n.
func mround(n, m float64) (float64, error) {
	if m == 0 {
		return 0, nil
	}
	if n*m < 0 {
		return 0, xlError(ErrCodeNum, "MROUND arguments differ in sign")
	}
	return math.Round(clean(n/m)) * m, nil
}

// Trigonometric reciprocals.

func reciprocal(name string, fn func(float64) float64) func(float64) (float64, error) {
	return func(x float64) (float64, error) {
		d := fn(x)
		if d == 0 {
			return 0, xlError(ErrCodeDiv0, "%s of %s", name, core.FormatNumber(x))
		}
		return 1 / d, nil
	}
}

// acot is the arccotangent in (0, pi).
func acot(x float64) (float64, error) {
	return math.Pi/2 - math.Atan(x), nil
}

func acoth(x float64) (float64, error) {
	if math.Abs(x) <= 1 {
		return 0, xlError(ErrCodeNum, "ACOTH needs |x| > 1, got %s", core.FormatNumber(x))
	}
	return math.Log((x+1)/(x-1)) / 2, nil
}

// vectorLookup implements LOOKUP: an approximate match of v in an
// ascending vector, returning the item at the same position of the result
// vector. Without one, a table is searched along its longer side and the
// last row or column answers.
func vectorLookup(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v, table, resultTable starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &v, &table, &resultTable); err != nil {
		return nil, err
	}
	g, err := toGrid(table)
	if err != nil {
		return nil, err
	}

	var keys, results []starlark.Value
	switch list, isVector := g.vector(); {
	case resultTable != nil && resultTable != starlark.None:
		if !isVector {
			return nil, xlError(ErrCodeNA, "LOOKUP needs a single row or column")
		}
		rg, err := toGrid(resultTable)
		if err != nil {
			return nil, err
		}
		if results, isVector = rg.vector(); !isVector {
			return nil, xlError(ErrCodeNA, "LOOKUP results need a single row or column")
		}
		keys = list
	case isVector:
		keys, results = list, list
	case g.cols() > g.rows():
		keys, results = g[0], g[g.rows()-1]
	default:
		for _, row := range g {
			keys = append(keys, row[0])
			results = append(results, row[len(row)-1])
		}
	}

	i, err := find(v, keys, 1)
	if err != nil {
		return nil, err
	}
	if i > len(results) {
		return nil, xlError(ErrCodeNA, "LOOKUP result %d is outside 1..%d", i, len(results))
	}
	return results[i-1], nil
}

// upperName is the spreadsheet name of a runtime builtin.
func upperName(b *starlark.Builtin) string {
	return strings.ToUpper(b.Name())
}
