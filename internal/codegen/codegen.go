// Package codegen lowers a linearized set of cells into one Starlark
// function.
//
// The generated module defines a single entry point:
//
//	def evaluate(<inputs>):
//	    <one assignment per reachable non-input cell, in linear order>
//	    return (<outputs in declaration order>,)
//
// It reads two predeclared modules: "math" (go.starlark.net/lib/math) and
// "_xl", the spreadsheet runtime. User functions are predeclared globals
// named "_udf_<name>".
package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/formula"
	"github.com/leapstack-labs/leapcell/pkg/functions"
)

// EntryName is the name of the generated function.
const EntryName = "evaluate"

// Functions resolves call names to descriptors.
type Functions interface {
	Lookup(name string) (functions.Descriptor, error)
}

// NamedAddress is a declared input or output.
type NamedAddress struct {
	Name    string
	Address core.Address
}

// Request carries everything the generator reads.
type Request struct {
	// Order lists reachable cells, dependencies first.
	Order []core.Address
	// Exprs holds the parsed tree of every reachable formula cell.
	Exprs map[core.Address]formula.Node
	// Cells holds the raw content of every reachable cell.
	Cells map[core.Address]core.Cell
	// Blanks lists empty cells that Cells carries as zero.
	Blanks    []core.Address
	Inputs    []NamedAddress
	Outputs   []NamedAddress
	Functions Functions
	// FoldConstants evaluates operations on literals at generation time.
	FoldConstants bool
}

// Binding is an input parameter or an output value of the generated function.
type Binding struct {
	Name    string
	Address core.Address
	Kind    core.ValueKind
	// Ident is the parameter or local holding the value.
	Ident string
}

// UserFunction is a user-defined function the program calls.
type UserFunction struct {
	Global string
	Func   *functions.UserDefined
}

// Program is the generated Starlark module.
type Program struct {
	Entry   string
	Source  string
	Inputs  []Binding
	Outputs []Binding
	// Order is the linear order of the cells the program assigns.
	Order []core.Address
	// UserFunctions lists referenced user functions by global name.
	UserFunctions []UserFunction
}

// InputNames returns the input binding names in declaration order.
func (p *Program) InputNames() []string {
	names := make([]string, len(p.Inputs))
	for i, b := range p.Inputs {
		names[i] = b.Name
	}
	return names
}

// OutputNames returns the output binding names in declaration order.
func (p *Program) OutputNames() []string {
	names := make([]string, len(p.Outputs))
	for i, b := range p.Outputs {
		names[i] = b.Name
	}
	return names
}

type generator struct {
	req    Request
	names  *namer
	idents map[core.Address]string
	kinds  map[core.Address]core.ValueKind
	inputs map[core.Address]bool
	blanks map[core.Address]bool
	udfs   map[string]UserFunction // keyed by function name

	cell core.Address // cell being lowered
}

// Generate lowers req into a Program. Constructs that cannot be lowered
// fail with *core.UnsupportedExpressionError; the source is never partial.
func Generate(req Request) (*Program, error) {
	g := &generator{
		req:    req,
		names:  newNamer(),
		idents: make(map[core.Address]string),
		kinds:  make(map[core.Address]core.ValueKind),
		inputs: make(map[core.Address]bool),
		blanks: make(map[core.Address]bool, len(req.Blanks)),
		udfs:   make(map[string]UserFunction),
	}

	for _, addr := range req.Blanks {
		g.blanks[addr] = true
	}

	prog := &Program{Entry: EntryName}

	for _, in := range req.Inputs {
		if !ValidIdentifier(in.Name) {
			return nil, &core.InvalidBindingError{Name: in.Name, Reason: "not a valid identifier"}
		}
		if !g.names.claim(in.Name) {
			return nil, &core.DuplicateBindingError{Role: core.RoleInput, Name: in.Name, Address: in.Address, ByName: true}
		}
		kind := inputKind(req.Cells[in.Address])
		g.idents[in.Address] = in.Name
		g.kinds[in.Address] = kind
		g.inputs[in.Address] = true
		prog.Inputs = append(prog.Inputs, Binding{Name: in.Name, Address: in.Address, Kind: kind, Ident: in.Name})
	}

	// identifiers are assigned in linear order so names are reproducible
	var assigned []core.Address
	for _, addr := range req.Order {
		if g.inputs[addr] {
			continue
		}
		g.idents[addr] = g.names.fresh(localName(addr))
		assigned = append(assigned, addr)
	}

	var body strings.Builder
	for _, addr := range assigned {
		if err := g.emitCell(&body, addr); err != nil {
			return nil, err
		}
	}

	for _, out := range req.Outputs {
		ident, ok := g.idents[out.Address]
		if !ok {
			return nil, &core.UnresolvedReferenceError{Ref: out.Address, Reason: "output was not resolved"}
		}
		prog.Outputs = append(prog.Outputs, Binding{Name: out.Name, Address: out.Address, Kind: g.kinds[out.Address], Ident: ident})
	}

	prog.Order = assigned
	prog.UserFunctions = g.userFunctions()
	prog.Source = render(prog, body.String())
	return prog, nil
}

// inputKind is the static kind of an input: the kind of its stored literal,
// number when it holds a formula or nothing.
func inputKind(cell core.Cell) core.ValueKind {
	switch cell.Value.Kind {
	case core.KindBool, core.KindText:
		return cell.Value.Kind
	}
	return core.KindNumber
}

// localName derives a local name such as "sheet1_b2" from an address.
func localName(a core.Address) string {
	return sanitize(a.Sheet) + "_" + strings.ToLower(core.ColumnName(a.Col)) + fmt.Sprint(a.Row)
}

// emitCell writes the assignment of one cell.
func (g *generator) emitCell(w *strings.Builder, addr core.Address) error {
	cell, ok := g.req.Cells[addr]
	if !ok {
		return &core.UnresolvedReferenceError{Ref: addr, Reason: "cell missing from snapshot"}
	}
	ident := g.idents[addr]
	g.cell = addr

	var (
		op      operand
		comment string
	)
	if cell.Value.IsFormula() {
		node, ok := g.req.Exprs[addr]
		if !ok {
			return &core.UnsupportedExpressionError{Address: addr, Expr: "=" + cell.Value.Text, Reason: "formula was not parsed"}
		}
		var err error
		if op, err = g.lower(node); err != nil {
			return err
		}
		comment = addr.String() + ": =" + node.String()
	} else {
		lit, err := literal(cell.Value)
		if err != nil {
			return &core.UnsupportedExpressionError{Address: addr, Expr: cell.Value.Raw(), Reason: err.Error()}
		}
		op = lit
		comment = addr.String() + ": " + cell.Value.String()
	}
	if op.kind == kindAny {
		return g.unsupported(nil, "cell value never resolves to a single kind")
	}
	g.kinds[addr] = op.kind

	fmt.Fprintf(w, "    # %s\n", oneLine(comment))
	fmt.Fprintf(w, "    %s = %s\n", ident, op.code)
	return nil
}

func (g *generator) userFunctions() []UserFunction {
	out := make([]UserFunction, 0, len(g.udfs))
	for _, u := range g.udfs {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Global < out[j].Global })
	return out
}

// render assembles the module source.
func render(prog *Program, body string) string {
	var b strings.Builder
	b.WriteString("# Code generated by leapcell. DO NOT EDIT.\n")
	if len(prog.Inputs) > 0 {
		b.WriteString("#\n# inputs:\n")
		for _, in := range prog.Inputs {
			fmt.Fprintf(&b, "#   %s = %s (%s)\n", in.Name, in.Address, in.Kind)
		}
	}
	b.WriteString("#\n# outputs:\n")
	for _, out := range prog.Outputs {
		fmt.Fprintf(&b, "#   %s = %s (%s)\n", out.Name, out.Address, out.Kind)
	}
	b.WriteString("\n")

	params := make([]string, len(prog.Inputs))
	for i, in := range prog.Inputs {
		params[i] = in.Ident
	}
	fmt.Fprintf(&b, "def %s(%s):\n", prog.Entry, strings.Join(params, ", "))
	b.WriteString(body)

	results := make([]string, len(prog.Outputs))
	for i, out := range prog.Outputs {
		results[i] = out.Ident
	}
	fmt.Fprintf(&b, "    return (%s,)\n", strings.Join(results, ", "))
	return b.String()
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
