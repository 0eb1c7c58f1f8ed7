package formula

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/token"
)

// Node is an expression tree node. Nodes are immutable once built and
// every formula owns its own tree.
type Node interface {
	// Pos returns the position of the node's first token.
	Pos() token.Position
	// String renders the node back to canonical formula text.
	String() string
	exprNode()
}

// Literal is a number, text or boolean constant.
type Literal struct {
	Value core.Value
	At    token.Position
}

// CellRef references a single cell.
type CellRef struct {
	Address core.Address
	At      token.Position
}

// RangeRef references a rectangular block of cells.
type RangeRef struct {
	Range core.Range
	At    token.Position
}

// UnaryExpr is a prefix sign (MINUS, PLUS) or the postfix PERCENT operator.
type UnaryExpr struct {
	Op token.TokenType
	X  Node
	At token.Position
}

// BinaryExpr is an infix arithmetic, comparison or concatenation.
type BinaryExpr struct {
	Op    token.TokenType
	Left  Node
	Right Node
	At    token.Position
}

// CallExpr is a function call. Name is the registry's canonical name.
type CallExpr struct {
	Name string
	Args []Node
	At   token.Position
}

func (*Literal) exprNode()    {}
func (*CellRef) exprNode()    {}
func (*RangeRef) exprNode()   {}
func (*UnaryExpr) exprNode()  {}
func (*BinaryExpr) exprNode() {}
func (*CallExpr) exprNode()   {}

func (n *Literal) Pos() token.Position    { return n.At }
func (n *CellRef) Pos() token.Position    { return n.At }
func (n *RangeRef) Pos() token.Position   { return n.At }
func (n *UnaryExpr) Pos() token.Position  { return n.At }
func (n *BinaryExpr) Pos() token.Position { return n.At }
func (n *CallExpr) Pos() token.Position   { return n.At }

func (n *Literal) String() string {
	switch n.Value.Kind {
	case core.KindNumber:
		return strconv.FormatFloat(n.Value.Number, 'g', -1, 64)
	case core.KindText:
		return `"` + strings.ReplaceAll(n.Value.Text, `"`, `""`) + `"`
	default:
		return n.Value.Raw()
	}
}

func (n *CellRef) String() string  { return n.Address.String() }
func (n *RangeRef) String() string { return n.Range.String() }

func (n *UnaryExpr) String() string {
	if n.Op == token.PERCENT {
		return n.X.String() + "%"
	}
	return n.Op.String() + n.X.String()
}

func (n *BinaryExpr) String() string {
	return "(" + n.Left.String() + n.Op.String() + n.Right.String() + ")"
}

func (n *CallExpr) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Name + "(" + strings.Join(args, ",") + ")"
}

// Walk traverses the tree depth-first in source order, calling fn for each
// node. Children are skipped when fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch e := n.(type) {
	case *UnaryExpr:
		Walk(e.X, fn)
	case *BinaryExpr:
		Walk(e.Left, fn)
		Walk(e.Right, fn)
	case *CallExpr:
		for _, a := range e.Args {
			Walk(a, fn)
		}
	}
}

// References returns the CellRef and RangeRef nodes of the tree in source order.
func References(n Node) []Node {
	var refs []Node
	Walk(n, func(c Node) bool {
		switch c.(type) {
		case *CellRef, *RangeRef:
			refs = append(refs, c)
		}
		return true
	})
	return refs
}

// Dependencies returns every address the tree reads, ranges expanded,
// without duplicates and in Address order.
func Dependencies(n Node) []core.Address {
	seen := make(map[core.Address]struct{})
	var out []core.Address
	add := func(a core.Address) {
		if _, ok := seen[a]; !ok {
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	for _, ref := range References(n) {
		switch r := ref.(type) {
		case *CellRef:
			add(r.Address)
		case *RangeRef:
			for _, a := range r.Range.Cells() {
				add(a)
			}
		}
	}
	core.SortAddresses(out)
	return out
}
