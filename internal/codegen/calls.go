package codegen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/formula"
	"github.com/leapstack-labs/leapcell/pkg/functions"
	"github.com/leapstack-labs/leapcell/pkg/token"
)

// element is one flattened argument of an aggregate.
type element struct {
	op        operand
	node      formula.Node
	fromRange bool
}

func (g *generator) lowerCall(e *formula.CallExpr) (operand, error) {
	desc, err := g.req.Functions.Lookup(e.Name)
	if err != nil {
		var ufe *core.UnsupportedFunctionError
		if errors.As(err, &ufe) {
			return operand{}, &core.UnsupportedFunctionError{Name: ufe.Name, Address: g.cell}
		}
		return operand{}, err
	}
	if !desc.Arity().Accepts(len(e.Args)) {
		return operand{}, g.unsupported(e, fmt.Sprintf("%s expects %s arguments, got %d", desc.Name(), desc.Arity(), len(e.Args)))
	}

	switch d := desc.(type) {
	case *functions.UserDefined:
		return g.lowerUserCall(e, d)
	case *functions.Builtin:
		return g.lowerBuiltin(e, d)
	}
	return operand{}, g.unsupported(e, fmt.Sprintf("function %s has no lowering", desc.Name()))
}

func (g *generator) lowerUserCall(e *formula.CallExpr, u *functions.UserDefined) (operand, error) {
	args, err := g.scalars(e, e.Args)
	if err != nil {
		return operand{}, err
	}
	for i, a := range args {
		if args[i], err = g.numeric(e.Args[i], a); err != nil {
			return operand{}, err
		}
	}
	return operand{code: g.udf(u) + "(" + joinCode(args) + ")", kind: core.KindNumber}, nil
}

func (g *generator) lowerBuiltin(e *formula.CallExpr, b *functions.Builtin) (operand, error) {
	switch b.Rule {
	case functions.RuleFold:
		return g.lowerFold(e, b)
	case functions.RuleAggregate:
		return g.lowerAggregate(e, b)
	case functions.RuleCount:
		return g.lowerCount(e, b)
	case functions.RuleConditional:
		switch b.Name() {
		case "IF":
			return g.lowerIf(e)
		case "IFS":
			return g.lowerIfs(e)
		case "SWITCH":
			return g.lowerSwitch(e)
		}
	case functions.RuleLogical:
		x, err := g.lower(e.Args[0])
		if err != nil {
			return operand{}, err
		}
		if x, err = g.truth(e.Args[0], x); err != nil {
			return operand{}, err
		}
		if g.fold(x) {
			return boolLit(!x.lit.Bool), nil
		}
		return operand{code: b.Target + " " + x.wrapped(), kind: core.KindBool, compound: true}, nil
	case functions.RuleNative, functions.RuleRuntime:
		return g.lowerScalarCall(e, b)
	case functions.RuleConstant:
		switch b.Target {
		case "True":
			return boolLit(true), nil
		case "False":
			return boolLit(false), nil
		case "math.pi":
			op := numberLit(3.141592653589793)
			op.code = b.Target
			return op, nil
		}
		return operand{code: b.Target, kind: b.Returns}, nil
	case functions.RuleLookup:
		if b.Name() == "CHOOSE" {
			return g.lowerChoose(e, b)
		}
		return g.lowerTable(e, b)
	case functions.RuleCriteria:
		return g.lowerCriteria(e, b)
	case functions.RuleTypeTest:
		return g.lowerTypeTest(e, b)
	}
	return operand{}, g.unsupported(e, fmt.Sprintf("function %s has no lowering", b.Name()))
}

// scalars lowers arguments that must be single values.
func (g *generator) scalars(e *formula.CallExpr, nodes []formula.Node) ([]operand, error) {
	out := make([]operand, len(nodes))
	for i, n := range nodes {
		if _, ok := n.(*formula.RangeRef); ok {
			return nil, g.unsupported(n, fmt.Sprintf("%s does not accept a range as argument %d", e.Name, i+1))
		}
		op, err := g.lower(n)
		if err != nil {
			return nil, err
		}
		out[i] = op
	}
	return out, nil
}

// elements flattens arguments, expanding ranges row by row.
func (g *generator) elements(e *formula.CallExpr, b *functions.Builtin) ([]element, error) {
	var out []element
	for i, arg := range e.Args {
		if r, ok := arg.(*formula.RangeRef); ok {
			if !b.AcceptsRange(i) {
				return nil, g.unsupported(arg, fmt.Sprintf("%s does not accept a range as argument %d", b.Name(), i+1))
			}
			for _, addr := range r.Range.Cells() {
				op, err := g.cellOperand(addr)
				if err != nil {
					return nil, err
				}
				out = append(out, element{op: op, node: arg, fromRange: true})
			}
			continue
		}
		op, err := g.lower(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, element{op: op, node: arg})
	}
	return out, nil
}

// numericElements keeps the values numeric aggregates read: numbers from
// ranges, and numbers or booleans passed directly. Direct text fails.
func (g *generator) numericElements(elems []element) ([]operand, error) {
	var out []operand
	for _, el := range elems {
		if el.fromRange {
			if el.op.kind == core.KindNumber {
				out = append(out, el.op)
			}
			continue
		}
		op, err := g.numeric(el.node, el.op)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

func (g *generator) lowerFold(e *formula.CallExpr, b *functions.Builtin) (operand, error) {
	elems, err := g.elements(e, b)
	if err != nil {
		return operand{}, err
	}
	ops, err := g.numericElements(elems)
	if err != nil {
		return operand{}, err
	}
	if len(ops) == 0 {
		return numberLit(0), nil
	}

	if g.req.FoldConstants && allLiteral(ops) {
		acc := ops[0].lit.Number
		for _, o := range ops[1:] {
			if b.Target == "*" {
				acc *= o.lit.Number
			} else {
				acc += o.lit.Number
			}
		}
		if finite(acc) {
			return numberLit(acc), nil
		}
	}

	if len(ops) == 1 {
		return ops[0], nil
	}
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = o.wrapped()
	}
	return operand{code: strings.Join(parts, " "+b.Target+" "), kind: core.KindNumber, compound: true}, nil
}

func (g *generator) lowerAggregate(e *formula.CallExpr, b *functions.Builtin) (operand, error) {
	elems, err := g.elements(e, b)
	if err != nil {
		return operand{}, err
	}

	var ops []operand
	switch b.Returns {
	case core.KindNumber:
		if ops, err = g.numericElements(elems); err != nil {
			return operand{}, err
		}
	case core.KindBool:
		for _, el := range elems {
			if el.op.kind == core.KindText {
				if el.fromRange {
					continue
				}
				return operand{}, g.unsupported(el.node, b.Name()+" needs logical values, got text")
			}
			ops = append(ops, el.op)
		}
	default:
		for _, el := range elems {
			ops = append(ops, el.op)
		}
	}

	if b.Returns == core.KindText && g.req.FoldConstants && allLiteral(ops) {
		var sb strings.Builder
		for _, o := range ops {
			sb.WriteString(displayText(*o.lit))
		}
		return textLit(sb.String()), nil
	}
	return operand{code: b.Target + "([" + joinCode(ops) + "])", kind: b.Returns}, nil
}

// lowerCount counts arguments from their static kinds.
func (g *generator) lowerCount(e *formula.CallExpr, b *functions.Builtin) (operand, error) {
	elems, err := g.elements(e, b)
	if err != nil {
		return operand{}, err
	}
	n := 0
	for _, el := range elems {
		if b.Name() == "COUNTA" {
			n++
			continue
		}
		switch el.op.kind {
		case core.KindNumber:
			n++
		case core.KindBool:
			if !el.fromRange {
				n++
			}
		case core.KindText:
			if !el.fromRange && el.op.lit != nil {
				if _, ok := core.ParseNumber(strings.TrimSpace(el.op.lit.Text)); ok {
					n++
				}
			}
		}
	}
	return numberLit(float64(n)), nil
}

func (g *generator) lowerIf(e *formula.CallExpr) (operand, error) {
	ops, err := g.scalars(e, e.Args)
	if err != nil {
		return operand{}, err
	}
	test, err := g.truth(e.Args[0], ops[0])
	if err != nil {
		return operand{}, err
	}
	then, otherwise := ops[1], boolLit(false)
	var elseNode formula.Node = e
	if len(ops) == 3 {
		otherwise, elseNode = ops[2], e.Args[2]
	}

	kind, err := unify(then.kind, otherwise.kind)
	if err != nil {
		return operand{}, g.unsupported(e, "IF branches "+err.Error())
	}
	if then, err = g.coerce(e.Args[1], then, kind); err != nil {
		return operand{}, err
	}
	if otherwise, err = g.coerce(elseNode, otherwise, kind); err != nil {
		return operand{}, err
	}

	if g.fold(test) {
		if test.lit.Bool {
			return then, nil
		}
		return otherwise, nil
	}
	return conditional(test, then, otherwise, kind), nil
}

func conditional(test, then, otherwise operand, kind core.ValueKind) operand {
	return operand{
		code:     then.wrapped() + " if " + test.wrapped() + " else " + otherwise.wrapped(),
		kind:     kind,
		compound: true,
	}
}

func (g *generator) lowerIfs(e *formula.CallExpr) (operand, error) {
	if len(e.Args)%2 != 0 {
		return operand{}, g.unsupported(e, "IFS expects condition and value pairs")
	}
	ops, err := g.scalars(e, e.Args)
	if err != nil {
		return operand{}, err
	}

	kinds := make([]core.ValueKind, 0, len(ops)/2)
	for i := 1; i < len(ops); i += 2 {
		kinds = append(kinds, ops[i].kind)
	}
	kind, err := unify(kinds...)
	if err != nil {
		return operand{}, g.unsupported(e, "IFS values "+err.Error())
	}

	result := failure("#N/A IFS: no condition is true")
	for i := len(ops) - 2; i >= 0; i -= 2 {
		test, err := g.truth(e.Args[i], ops[i])
		if err != nil {
			return operand{}, err
		}
		value, err := g.coerce(e.Args[i+1], ops[i+1], kind)
		if err != nil {
			return operand{}, err
		}
		switch {
		case g.fold(test) && test.lit.Bool:
			result = value
		case g.fold(test):
			// never taken
		default:
			result = conditional(test, value, result, kind)
		}
	}
	if result.kind == kindAny {
		result.kind = kind
	}
	return result, nil
}

func (g *generator) lowerSwitch(e *formula.CallExpr) (operand, error) {
	ops, err := g.scalars(e, e.Args)
	if err != nil {
		return operand{}, err
	}
	subject := ops[0]
	pairs := (len(ops) - 1) / 2
	hasDefault := (len(ops)-1)%2 == 1

	kinds := make([]core.ValueKind, 0, pairs+1)
	for i := 0; i < pairs; i++ {
		kinds = append(kinds, ops[2+2*i].kind)
	}
	if hasDefault {
		kinds = append(kinds, ops[len(ops)-1].kind)
	}
	kind, err := unify(kinds...)
	if err != nil {
		return operand{}, g.unsupported(e, "SWITCH results "+err.Error())
	}

	result := failure("#N/A SWITCH: no value matches")
	if hasDefault {
		if result, err = g.coerce(e.Args[len(ops)-1], ops[len(ops)-1], kind); err != nil {
			return operand{}, err
		}
	}
	for i := pairs - 1; i >= 0; i-- {
		value, res := ops[1+2*i], ops[2+2*i]
		if value.kind != subject.kind {
			// values of another kind never match
			continue
		}
		test, err := g.lowerComparison(&formula.BinaryExpr{Op: token.EQ, Left: e.Args[0], Right: e.Args[1+2*i], At: e.At}, "==", subject, value)
		if err != nil {
			return operand{}, err
		}
		if res, err = g.coerce(e.Args[2+2*i], res, kind); err != nil {
			return operand{}, err
		}
		switch {
		case g.fold(test) && test.lit.Bool:
			result = res
		case g.fold(test):
		default:
			result = conditional(test, res, result, kind)
		}
	}
	if result.kind == kindAny {
		result.kind = kind
	}
	return result, nil
}

func (g *generator) lowerScalarCall(e *formula.CallExpr, b *functions.Builtin) (operand, error) {
	args, err := g.scalars(e, e.Args)
	if err != nil {
		return operand{}, err
	}
	for i, a := range args {
		if args[i], err = g.numeric(e.Args[i], a); err != nil {
			return operand{}, err
		}
	}
	return operand{code: b.Target + "(" + joinCode(args) + ")", kind: b.Returns}, nil
}

func (g *generator) lowerChoose(e *formula.CallExpr, b *functions.Builtin) (operand, error) {
	ops, err := g.scalars(e, e.Args)
	if err != nil {
		return operand{}, err
	}
	idx, err := g.numeric(e.Args[0], ops[0])
	if err != nil {
		return operand{}, err
	}
	values := ops[1:]
	kinds := make([]core.ValueKind, len(values))
	for i, v := range values {
		kinds[i] = v.kind
	}
	kind, err := unify(kinds...)
	if err != nil {
		return operand{}, g.unsupported(e, "CHOOSE values "+err.Error())
	}
	for i, v := range values {
		if values[i], err = g.coerce(e.Args[i+1], v, kind); err != nil {
			return operand{}, err
		}
	}
	if g.fold(idx) {
		if i := int(idx.lit.Number); i >= 1 && i <= len(values) {
			return values[i-1], nil
		}
	}
	return operand{code: b.Target + "(" + idx.code + ", [" + joinCode(values) + "])", kind: kind}, nil
}

// table is a range lowered to a row-major grid.
type table struct {
	code  string
	kinds [][]core.ValueKind
}

func (g *generator) table(r *formula.RangeRef, zeroText bool) (table, error) {
	var t table
	rows := make([]string, r.Range.Rows())
	t.kinds = make([][]core.ValueKind, r.Range.Rows())
	for i := range rows {
		cells := make([]string, r.Range.Cols())
		t.kinds[i] = make([]core.ValueKind, r.Range.Cols())
		for j := range cells {
			addr := core.Address{Sheet: r.Range.From.Sheet, Col: r.Range.From.Col + j, Row: r.Range.From.Row + i}
			op, err := g.cellOperand(addr)
			if err != nil {
				return table{}, err
			}
			if zeroText && op.kind != core.KindNumber {
				op = numberLit(0)
			}
			cells[j] = op.code
			t.kinds[i][j] = op.kind
		}
		rows[i] = "[" + strings.Join(cells, ", ") + "]"
	}
	t.code = "[" + strings.Join(rows, ", ") + "]"
	return t, nil
}

func (t table) sameSize(o table) bool {
	return len(t.kinds) == len(o.kinds) && len(t.kinds[0]) == len(o.kinds[0])
}

// kindOf unifies the kinds of a table, restricted to one row or column
// when row or col is positive.
func (t table) kindOf(row, col int) (core.ValueKind, error) {
	var kinds []core.ValueKind
	for i, r := range t.kinds {
		if row > 0 && i != row-1 {
			continue
		}
		for j, k := range r {
			if col > 0 && j != col-1 {
				continue
			}
			kinds = append(kinds, k)
		}
	}
	return unify(kinds...)
}

func literalIndex(o operand) int {
	if o.lit == nil || o.lit.Kind != core.KindNumber {
		return 0
	}
	return int(o.lit.Number)
}

// lowerTable lowers the builtins that read ranges as grids: lookups,
// SUMPRODUCT and the range statistics.
func (g *generator) lowerTable(e *formula.CallExpr, b *functions.Builtin) (operand, error) {
	zeroText := b.Name() == "SUMPRODUCT"
	args := make([]string, len(e.Args))
	ops := make([]operand, len(e.Args))
	var tables []table

	for i, arg := range e.Args {
		if b.IsTable(i) {
			r, ok := arg.(*formula.RangeRef)
			if !ok {
				return operand{}, g.unsupported(arg, fmt.Sprintf("%s expects a range as argument %d", b.Name(), i+1))
			}
			t, err := g.table(r, zeroText)
			if err != nil {
				return operand{}, err
			}
			args[i] = t.code
			tables = append(tables, t)
			continue
		}
		if _, ok := arg.(*formula.RangeRef); ok {
			return operand{}, g.unsupported(arg, fmt.Sprintf("%s does not accept a range as argument %d", b.Name(), i+1))
		}
		op, err := g.lower(arg)
		if err != nil {
			return operand{}, err
		}
		// lookup values keep their kind, positions and flags are numbers
		if !b.IsKey(i) {
			if op, err = g.numeric(arg, op); err != nil {
				return operand{}, err
			}
		}
		ops[i] = op
		args[i] = op.code
	}

	kind := b.Returns
	if kind == core.KindEmpty {
		t := tables[0]
		row, col := 0, 0
		switch b.Name() {
		case "LOOKUP":
			t = tables[len(tables)-1]
			rows, cols := len(t.kinds), len(t.kinds[0])
			if len(tables) == 1 && rows > 1 && cols > 1 {
				// the array form returns from the last row or column
				if cols > rows {
					row = rows
				} else {
					col = cols
				}
			}
		case "INDEX":
			row = literalIndex(ops[1])
			if len(ops) == 3 {
				col = literalIndex(ops[2])
			} else if len(t.kinds) == 1 {
				row, col = 1, row
			}
		case "VLOOKUP":
			col = literalIndex(ops[2])
		case "HLOOKUP":
			row = literalIndex(ops[2])
		}
		var err error
		if kind, err = t.kindOf(row, col); err != nil {
			return operand{}, g.unsupported(e, b.Name()+" result "+err.Error())
		}
		if kind == kindAny {
			return operand{}, g.unsupported(e, b.Name()+" selects outside its range")
		}
	}

	switch b.Name() {
	case "SUMPRODUCT", "SUMX2MY2", "SUMXMY2":
		for _, t := range tables[1:] {
			if !t.sameSize(tables[0]) {
				return operand{}, g.unsupported(e, b.Name()+" ranges differ in size")
			}
		}
	}
	if b.Name() == "SUMPRODUCT" {
		return operand{code: b.Target + "([" + strings.Join(args, ", ") + "])", kind: kind}, nil
	}
	return operand{code: b.Target + "(" + strings.Join(args, ", ") + ")", kind: kind}, nil
}

// lowerCriteria lowers AVERAGEIF, MAXIFS and MINIFS. Criteria keep their
// kind and every range must have the size of the first.
func (g *generator) lowerCriteria(e *formula.CallExpr, b *functions.Builtin) (operand, error) {
	if b.Name() != "AVERAGEIF" && len(e.Args)%2 == 0 {
		return operand{}, g.unsupported(e, b.Name()+" expects a range followed by range and criterion pairs")
	}

	args := make([]string, len(e.Args))
	var tables []table
	for i, arg := range e.Args {
		r, isRange := arg.(*formula.RangeRef)
		switch {
		case b.IsTable(i) && !isRange:
			return operand{}, g.unsupported(arg, fmt.Sprintf("%s expects a range as argument %d", b.Name(), i+1))
		case b.IsTable(i):
			t, err := g.table(r, false)
			if err != nil {
				return operand{}, err
			}
			args[i] = t.code
			tables = append(tables, t)
		case isRange:
			return operand{}, g.unsupported(arg, fmt.Sprintf("%s does not accept a range as argument %d", b.Name(), i+1))
		default:
			op, err := g.lower(arg)
			if err != nil {
				return operand{}, err
			}
			args[i] = op.code
		}
	}
	for _, t := range tables[1:] {
		if !t.sameSize(tables[0]) {
			return operand{}, g.unsupported(e, b.Name()+" ranges differ in size")
		}
	}

	if b.Name() == "AVERAGEIF" {
		return operand{code: b.Target + "(" + strings.Join(args, ", ") + ")", kind: core.KindNumber}, nil
	}
	var ranges, criteria []string
	for i := 1; i < len(args); i += 2 {
		ranges = append(ranges, args[i])
		criteria = append(criteria, args[i+1])
	}
	code := fmt.Sprintf("%s(%s, [%s], [%s])", b.Target, args[0], strings.Join(ranges, ", "), strings.Join(criteria, ", "))
	return operand{code: code, kind: core.KindNumber}, nil
}

// lowerTypeTest answers ISNUMBER, ISTEXT, ISNONTEXT, ISLOGICAL, ISBLANK
// and TYPE from the static kind of the argument, which is not evaluated.
// Only a reference to an empty cell read as zero is blank.
func (g *generator) lowerTypeTest(e *formula.CallExpr, b *functions.Builtin) (operand, error) {
	ops, err := g.scalars(e, e.Args)
	if err != nil {
		return operand{}, err
	}
	kind := ops[0].kind
	if kind == kindAny {
		return operand{}, g.unsupported(e, b.Name()+" argument never resolves to a single kind")
	}
	blank := false
	if ref, ok := e.Args[0].(*formula.CellRef); ok {
		blank = g.blanks[ref.Address] && !g.inputs[ref.Address]
	}

	switch b.Name() {
	case "ISNUMBER":
		return boolLit(kind == core.KindNumber && !blank), nil
	case "ISTEXT":
		return boolLit(kind == core.KindText), nil
	case "ISNONTEXT":
		return boolLit(kind != core.KindText), nil
	case "ISLOGICAL":
		return boolLit(kind == core.KindBool), nil
	case "ISBLANK":
		return boolLit(blank), nil
	case "TYPE":
		switch kind {
		case core.KindText:
			return numberLit(2), nil
		case core.KindBool:
			return numberLit(4), nil
		}
		return numberLit(1), nil
	}
	return operand{}, g.unsupported(e, fmt.Sprintf("function %s has no lowering", b.Name()))
}

func allLiteral(ops []operand) bool {
	for _, o := range ops {
		if o.lit == nil {
			return false
		}
	}
	return true
}

func joinCode(ops []operand) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = o.code
	}
	return strings.Join(parts, ", ")
}
