package starlark

import (
	"math"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapcell/pkg/core"
)

// Range statistics and criteria filters. Tables arrive as lists of rows;
// text and logical cells are skipped where numbers are expected.

// numeric reports the value of a number cell.
func numeric(v starlark.Value) (float64, bool) {
	switch x := v.(type) {
	case starlark.Float:
		return float64(x), true
	case starlark.Int:
		return float64(x.Float()), true
	}
	return 0, false
}

// numberCells returns the number cells of g row by row.
func (g grid) numberCells() []float64 {
	var out []float64
	for _, row := range g {
		for _, v := range row {
			if f, ok := numeric(v); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

func (g grid) sameSize(o grid) bool {
	return g.rows() == o.rows() && g.cols() == o.cols()
}

// kth implements LARGE and SMALL. A fractional k rounds up.
func kth(largest bool) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			table starlark.Value
			k     num
		)
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &table, &k); err != nil {
			return nil, err
		}
		g, err := toGrid(table)
		if err != nil {
			return nil, err
		}
		xs := g.numberCells()
		n := int(math.Ceil(float64(k)))
		if n < 1 || n > len(xs) {
			return nil, xlError(ErrCodeNum, "%s k %s is outside 1..%d", upperName(b), core.FormatNumber(float64(k)), len(xs))
		}
		sort.Float64s(xs)
		if largest {
			return starlark.Float(xs[len(xs)-n]), nil
		}
		return starlark.Float(xs[n-1]), nil
	}
}

// trimmean drops int(n*percent/2) numbers from each end before averaging.
func trimmean(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		table   starlark.Value
		percent num
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &table, &percent); err != nil {
		return nil, err
	}
	g, err := toGrid(table)
	if err != nil {
		return nil, err
	}
	if percent < 0 || percent >= 1 {
		return nil, xlError(ErrCodeNum, "TRIMMEAN percent %s is outside [0, 1)", core.FormatNumber(float64(percent)))
	}
	xs := g.numberCells()
	if len(xs) == 0 {
		return nil, xlError(ErrCodeNum, "TRIMMEAN of no numbers")
	}
	sort.Float64s(xs)
	k := int(float64(len(xs)) * float64(percent) / 2)
	return result(average(xs[k : len(xs)-k]))
}

// seriessum adds a_i * x^(n + i*m) over the coefficients a, row by row.
func seriessum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		x, n, m num
		table   starlark.Value
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 4, &x, &n, &m, &table); err != nil {
		return nil, err
	}
	g, err := toGrid(table)
	if err != nil {
		return nil, err
	}
	var sum float64
	i := 0
	for _, row := range g {
		for _, v := range row {
			a, ok := numeric(v)
			if !ok {
				return nil, xlError(ErrCodeValue, "SERIESSUM coefficient %d is %s", i+1, v.Type())
			}
			sum += a * math.Pow(float64(x), float64(n)+float64(i)*float64(m))
			i++
		}
	}
	return result(sum, nil)
}

// pairwise implements SUMX2MY2 and SUMXMY2: the sum of term over the
// cells of two equally sized ranges where both hold numbers.
func pairwise(term func(x, y float64) float64) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var xt, yt starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &xt, &yt); err != nil {
			return nil, err
		}
		xg, err := toGrid(xt)
		if err != nil {
			return nil, err
		}
		yg, err := toGrid(yt)
		if err != nil {
			return nil, err
		}
		if !xg.sameSize(yg) {
			return nil, xlError(ErrCodeNA, "%s ranges differ in size", upperName(b))
		}
		var sum float64
		for r, row := range xg {
			for c, v := range row {
				x, okX := numeric(v)
				y, okY := numeric(yg[r][c])
				if okX && okY {
					sum += term(x, y)
				}
			}
		}
		return result(sum, nil)
	}
}

// criterion matches cells against a value such as 5, "apple" or ">=10".
// A text criterion may start with a comparison operator; the rest is a
// number when it reads as one.
type criterion struct {
	op    string
	value starlark.Value
}

var criterionOps = []string{">=", "<=", "<>", ">", "<", "="}

func parseCriterion(v starlark.Value) criterion {
	s, ok := v.(starlark.String)
	if !ok {
		return criterion{op: "=", value: v}
	}
	op, text := "=", string(s)
	for _, prefix := range criterionOps {
		if rest, found := strings.CutPrefix(text, prefix); found {
			op, text = prefix, rest
			break
		}
	}
	if f, ok := core.ParseNumber(strings.TrimSpace(text)); ok {
		return criterion{op: op, value: starlark.Float(f)}
	}
	return criterion{op: op, value: starlark.String(text)}
}

func (c criterion) match(v starlark.Value) bool {
	switch c.op {
	case "=":
		return equal(c.value, v)
	case "<>":
		return !equal(c.value, v)
	}
	cmp, ok := compare(v, c.value)
	if !ok {
		return false
	}
	switch c.op {
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	default:
		return cmp <= 0
	}
}

// averageif averages the numbers of the average range (the criteria range
// itself by default) where the criteria range matches.
func averageif(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var table, crit, averageTable starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &table, &crit, &averageTable); err != nil {
		return nil, err
	}
	g, err := toGrid(table)
	if err != nil {
		return nil, err
	}
	target := g
	if averageTable != nil && averageTable != starlark.None {
		if target, err = toGrid(averageTable); err != nil {
			return nil, err
		}
		if !target.sameSize(g) {
			return nil, xlError(ErrCodeValue, "AVERAGEIF ranges differ in size")
		}
	}

	c := parseCriterion(crit)
	var sum float64
	n := 0
	for r, row := range g {
		for col, v := range row {
			if !c.match(v) {
				continue
			}
			if f, ok := numeric(target[r][col]); ok {
				sum += f
				n++
			}
		}
	}
	if n == 0 {
		return nil, xlError(ErrCodeDiv0, "AVERAGEIF: no number matches")
	}
	return result(sum/float64(n), nil)
}

// extremeIfs implements MAXIFS and MINIFS: the extreme number of the
// target range among cells where every criteria range matches its
// criterion, or 0 when none does.
func extremeIfs(largest bool) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			target             starlark.Value
			ranges, conditions *starlark.List
		)
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &target, &ranges, &conditions); err != nil {
			return nil, err
		}
		name := upperName(b)
		tg, err := toGrid(target)
		if err != nil {
			return nil, err
		}
		if ranges.Len() == 0 || ranges.Len() != conditions.Len() {
			return nil, xlError(ErrCodeValue, "%s needs range and criterion pairs", name)
		}
		grids := make([]grid, ranges.Len())
		crits := make([]criterion, ranges.Len())
		for i := range grids {
			if grids[i], err = toGrid(ranges.Index(i)); err != nil {
				return nil, err
			}
			if !grids[i].sameSize(tg) {
				return nil, xlError(ErrCodeValue, "%s ranges differ in size", name)
			}
			crits[i] = parseCriterion(conditions.Index(i))
		}

		matches := func(r, c int) bool {
			for i, g := range grids {
				if !crits[i].match(g[r][c]) {
					return false
				}
			}
			return true
		}

		var best float64
		found := false
		for r, row := range tg {
			for c, v := range row {
				f, ok := numeric(v)
				if !ok || !matches(r, c) {
					continue
				}
				if !found || (largest && f > best) || (!largest && f < best) {
					best, found = f, true
				}
			}
		}
		return starlark.Float(best), nil
	}
}
