package codegen

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/formula"
	"github.com/leapstack-labs/leapcell/pkg/functions"
	"github.com/leapstack-labs/leapcell/pkg/token"
)

// kindAny is the kind of an expression that never yields, such as fail().
const kindAny core.ValueKind = -1

// operand is a lowered expression.
type operand struct {
	code     string
	kind     core.ValueKind
	lit      *core.Value // set when the value is known at generation time
	compound bool        // needs parentheses as an operand
}

// wrapped returns the code ready to be used as an operand.
func (o operand) wrapped() string {
	if o.compound {
		return "(" + o.code + ")"
	}
	return o.code
}

func numberLit(f float64) operand {
	v := core.Number(f)
	return operand{code: floatLiteral(f), kind: core.KindNumber, lit: &v, compound: f < 0 || math.Signbit(f)}
}

func boolLit(b bool) operand {
	v := core.Bool(b)
	code := "False"
	if b {
		code = "True"
	}
	return operand{code: code, kind: core.KindBool, lit: &v}
}

func textLit(s string) operand {
	v := core.Text(s)
	return operand{code: strconv.Quote(s), kind: core.KindText, lit: &v}
}

func literal(v core.Value) (operand, error) {
	switch v.Kind {
	case core.KindNumber:
		if !finite(v.Number) {
			return operand{}, fmt.Errorf("%v is not a finite number", v.Number)
		}
		return numberLit(v.Number), nil
	case core.KindBool:
		return boolLit(v.Bool), nil
	case core.KindText:
		return textLit(v.Text), nil
	}
	return operand{}, fmt.Errorf("no literal for %s value", v.Kind)
}

// floatLiteral renders f so that Starlark reads it back as the same float.
func floatLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (g *generator) unsupported(n formula.Node, reason string) error {
	expr := ""
	if n != nil {
		expr = n.String()
	}
	return &core.UnsupportedExpressionError{Address: g.cell, Expr: expr, Reason: reason}
}

// lower lowers a scalar expression.
func (g *generator) lower(n formula.Node) (operand, error) {
	switch e := n.(type) {
	case *formula.Literal:
		op, err := literal(e.Value)
		if err != nil {
			return operand{}, g.unsupported(n, err.Error())
		}
		return op, nil
	case *formula.CellRef:
		return g.cellOperand(e.Address)
	case *formula.RangeRef:
		return operand{}, g.unsupported(n, "a range is used where a single value is required")
	case *formula.UnaryExpr:
		return g.lowerUnary(e)
	case *formula.BinaryExpr:
		return g.lowerBinary(e)
	case *formula.CallExpr:
		return g.lowerCall(e)
	}
	return operand{}, g.unsupported(n, fmt.Sprintf("unknown node %T", n))
}

// cellOperand references a previously bound cell. Literal cells carry their
// value so operations on them can be folded.
func (g *generator) cellOperand(addr core.Address) (operand, error) {
	ident, ok := g.idents[addr]
	if !ok {
		return operand{}, &core.UnresolvedReferenceError{Ref: addr, From: g.cell, Reason: "cell was not resolved"}
	}
	kind, ok := g.kinds[addr]
	if !ok {
		// only a cycle can reference a cell that is not yet bound
		return operand{}, &core.CircularReferenceError{Cycle: []core.Address{g.cell, addr}}
	}
	op := operand{code: ident, kind: kind}
	if cell, ok := g.req.Cells[addr]; ok && !g.inputs[addr] && g.req.FoldConstants {
		switch cell.Value.Kind {
		case core.KindNumber, core.KindBool, core.KindText:
			v := cell.Value
			op.lit = &v
		}
	}
	return op, nil
}

// numeric converts o for arithmetic: booleans become 1 or 0, text fails.
func (g *generator) numeric(n formula.Node, o operand) (operand, error) {
	switch o.kind {
	case core.KindNumber, kindAny:
		return o, nil
	case core.KindBool:
		if o.lit != nil {
			if o.lit.Bool {
				return numberLit(1), nil
			}
			return numberLit(0), nil
		}
		return operand{code: "(1.0 if " + o.wrapped() + " else 0.0)", kind: core.KindNumber}, nil
	}
	return operand{}, g.unsupported(n, "text used in arithmetic")
}

// truth converts o to a condition: numbers are true when non-zero.
func (g *generator) truth(n formula.Node, o operand) (operand, error) {
	switch o.kind {
	case core.KindBool:
		return o, nil
	case core.KindNumber:
		if o.lit != nil {
			return boolLit(o.lit.Number != 0), nil
		}
		return operand{code: o.wrapped() + " != 0", kind: core.KindBool, compound: true}, nil
	}
	return operand{}, g.unsupported(n, "text used as a condition")
}

func (g *generator) fold(o operand) bool {
	return g.req.FoldConstants && o.lit != nil
}

func (g *generator) lowerUnary(e *formula.UnaryExpr) (operand, error) {
	x, err := g.lower(e.X)
	if err != nil {
		return operand{}, err
	}
	x, err = g.numeric(e.X, x)
	if err != nil {
		return operand{}, err
	}
	switch e.Op {
	case token.MINUS:
		if g.fold(x) {
			return numberLit(-x.lit.Number), nil
		}
		return operand{code: "-" + x.wrapped(), kind: core.KindNumber, compound: true}, nil
	case token.PLUS:
		return x, nil
	case token.PERCENT:
		if g.fold(x) {
			return numberLit(x.lit.Number / 100), nil
		}
		return operand{code: x.wrapped() + " / 100.0", kind: core.KindNumber, compound: true}, nil
	}
	return operand{}, g.unsupported(e, "unknown unary operator "+e.Op.String())
}

var arithmetic = map[token.TokenType]string{
	token.PLUS:  "+",
	token.MINUS: "-",
	token.STAR:  "*",
	token.SLASH: "/",
}

var comparisons = map[token.TokenType]string{
	token.EQ: "==",
	token.NE: "!=",
	token.LT: "<",
	token.GT: ">",
	token.LE: "<=",
	token.GE: ">=",
}

func (g *generator) lowerBinary(e *formula.BinaryExpr) (operand, error) {
	l, err := g.lower(e.Left)
	if err != nil {
		return operand{}, err
	}
	r, err := g.lower(e.Right)
	if err != nil {
		return operand{}, err
	}

	if op, ok := arithmetic[e.Op]; ok {
		return g.lowerArithmetic(e, op, l, r)
	}
	if op, ok := comparisons[e.Op]; ok {
		return g.lowerComparison(e, op, l, r)
	}

	switch e.Op {
	case token.CARET:
		if l, err = g.numeric(e.Left, l); err != nil {
			return operand{}, err
		}
		if r, err = g.numeric(e.Right, r); err != nil {
			return operand{}, err
		}
		if g.fold(l) && g.fold(r) {
			if v := math.Pow(l.lit.Number, r.lit.Number); finite(v) {
				return numberLit(v), nil
			}
		}
		return operand{code: "math.pow(" + l.code + ", " + r.code + ")", kind: core.KindNumber}, nil

	case token.AMP:
		if g.fold(l) && g.fold(r) {
			return textLit(displayText(*l.lit) + displayText(*r.lit)), nil
		}
		return operand{code: "_xl.concat([" + l.code + ", " + r.code + "])", kind: core.KindText}, nil
	}
	return operand{}, g.unsupported(e, "unknown operator "+e.Op.String())
}

func (g *generator) lowerArithmetic(e *formula.BinaryExpr, op string, l, r operand) (operand, error) {
	l, err := g.numeric(e.Left, l)
	if err != nil {
		return operand{}, err
	}
	if r, err = g.numeric(e.Right, r); err != nil {
		return operand{}, err
	}
	if g.fold(l) && g.fold(r) {
		a, b := l.lit.Number, r.lit.Number
		var v float64
		switch op {
		case "+":
			v = a + b
		case "-":
			v = a - b
		case "*":
			v = a * b
		case "/":
			v = a / b // b == 0 is left to fail at run time
		}
		if !(op == "/" && b == 0) && finite(v) {
			return numberLit(v), nil
		}
	}
	return operand{code: l.wrapped() + " " + op + " " + r.wrapped(), kind: core.KindNumber, compound: true}, nil
}

func (g *generator) lowerComparison(e *formula.BinaryExpr, op string, l, r operand) (operand, error) {
	if l.kind != r.kind {
		return operand{}, g.unsupported(e, fmt.Sprintf("cannot compare %s with %s", l.kind, r.kind))
	}
	if g.fold(l) && g.fold(r) {
		if c, ok := compareValues(*l.lit, *r.lit); ok {
			return boolLit(compareResult(op, c)), nil
		}
	}
	lc, rc := l.wrapped(), r.wrapped()
	if l.kind == core.KindText {
		// spreadsheet text comparison ignores case
		lc, rc = lc+".lower()", rc+".lower()"
	}
	return operand{code: lc + " " + op + " " + rc, kind: core.KindBool, compound: true}, nil
}

func compareValues(a, b core.Value) (int, bool) {
	switch a.Kind {
	case core.KindNumber:
		switch {
		case a.Number < b.Number:
			return -1, true
		case a.Number > b.Number:
			return 1, true
		}
		return 0, true
	case core.KindBool:
		x, y := boolNumber(a.Bool), boolNumber(b.Bool)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case core.KindText:
		return strings.Compare(strings.ToLower(a.Text), strings.ToLower(b.Text)), true
	}
	return 0, false
}

func compareResult(op string, c int) bool {
	switch op {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "<=":
		return c <= 0
	default:
		return c >= 0
	}
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// displayText renders a constant the way concatenation does at run time.
func displayText(v core.Value) string {
	switch v.Kind {
	case core.KindNumber:
		return core.FormatNumber(v.Number)
	case core.KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	}
	return v.Text
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// unify returns the common kind of branch values. Numbers and booleans mix
// as numbers; text mixes with nothing.
func unify(kinds ...core.ValueKind) (core.ValueKind, error) {
	result := kindAny
	for _, k := range kinds {
		switch {
		case k == kindAny || k == result:
		case result == kindAny:
			result = k
		case (k == core.KindNumber && result == core.KindBool) || (k == core.KindBool && result == core.KindNumber):
			result = core.KindNumber
		default:
			return kindAny, errors.New("values mix text with numbers")
		}
	}
	return result, nil
}

// coerce converts o to kind, which unify produced.
func (g *generator) coerce(n formula.Node, o operand, kind core.ValueKind) (operand, error) {
	if o.kind == kind || o.kind == kindAny {
		return o, nil
	}
	if kind == core.KindNumber {
		return g.numeric(n, o)
	}
	return o, nil
}

// failure is an expression that aborts evaluation with a spreadsheet error.
func failure(format string, args ...any) operand {
	return operand{code: "fail(" + strconv.Quote(fmt.Sprintf(format, args...)) + ")", kind: kindAny}
}

// udf returns the global name of a user function, registering it on first use.
func (g *generator) udf(u *functions.UserDefined) string {
	if existing, ok := g.udfs[u.Name()]; ok {
		return existing.Global
	}
	global := "_udf_" + sanitize(u.Name())
	for i := 2; g.globalTaken(global); i++ {
		global = "_udf_" + sanitize(u.Name()) + "_" + strconv.Itoa(i)
	}
	g.udfs[u.Name()] = UserFunction{Global: global, Func: u}
	return global
}

func (g *generator) globalTaken(name string) bool {
	for _, u := range g.udfs {
		if u.Global == name {
			return true
		}
	}
	return false
}
