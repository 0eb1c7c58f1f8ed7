// Package functions holds the formula function registry: every function a
// formula may call, either a builtin with a fixed lowering rule or a
// user-supplied Go callable.
package functions

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapcell/pkg/core"
)

// Kind distinguishes the two descriptor variants.
type Kind int

// Descriptor kinds.
const (
	KindBuiltin Kind = iota
	KindUserDefined
)

func (k Kind) String() string {
	if k == KindUserDefined {
		return "user"
	}
	return "builtin"
}

// Descriptor is consulted by the parser (arity) and the code generator (lowering).
type Descriptor interface {
	Name() string
	Arity() core.Arity
	Kind() Kind
}

// Rule selects how the code generator lowers a builtin call.
type Rule int

// Lowering rules.
const (
	// RuleFold lowers to an inline chain of Target operators over all arguments.
	RuleFold Rule = iota
	// RuleAggregate lowers to Target called with one flattened list of arguments.
	RuleAggregate
	// RuleCount is evaluated at generation time from the static argument kinds.
	RuleCount
	// RuleConditional lowers to nested conditional expressions (IF, IFS, SWITCH).
	RuleConditional
	// RuleLogical lowers to a boolean operator (NOT).
	RuleLogical
	// RuleNative lowers to a direct call of a math module function.
	RuleNative
	// RuleRuntime lowers to a direct call of a scalar runtime helper.
	RuleRuntime
	// RuleConstant lowers to the Target expression itself.
	RuleConstant
	// RuleLookup lowers to a runtime helper receiving ranges as row-major grids.
	RuleLookup
	// RuleCriteria lowers to a runtime helper filtering grids by criteria
	// (AVERAGEIF, MAXIFS, MINIFS).
	RuleCriteria
	// RuleTypeTest is evaluated at generation time from the static kind of
	// its argument (ISNUMBER, ISTEXT, TYPE).
	RuleTypeTest
)

var ruleNames = [...]string{
	RuleFold:        "fold",
	RuleAggregate:   "aggregate",
	RuleCount:       "count",
	RuleConditional: "conditional",
	RuleLogical:     "logical",
	RuleNative:      "native",
	RuleRuntime:     "runtime",
	RuleConstant:    "constant",
	RuleLookup:      "lookup",
	RuleCriteria:    "criteria",
	RuleTypeTest:    "type test",
}

func (r Rule) String() string {
	if r >= 0 && int(r) < len(ruleNames) {
		return ruleNames[r]
	}
	return fmt.Sprintf("Rule(%d)", int(r))
}

// RangeMode says where range references may appear in a builtin's arguments.
type RangeMode int

// Range modes.
const (
	// RangeNone accepts scalar arguments only.
	RangeNone RangeMode = iota
	// RangeFlatten accepts ranges anywhere and flattens them row by row.
	RangeFlatten
	// RangeTable requires ranges at the positions listed in Builtin.Tables.
	RangeTable
)

// Special positions in Builtin.Tables.
const (
	// AllArgs marks every argument as a table.
	AllArgs = -1
	// CriteriaPairs marks argument 0 and the first argument of every
	// following (range, criterion) pair.
	CriteriaPairs = -2
)

// Builtin is a function with a lowering rule known to the code generator.
// Target is a Starlark expression over the predeclared "math" module and
// the "_xl" runtime module (for example "math.sqrt" or "_xl.round");
// for RuleFold it is the infix operator.
type Builtin struct {
	name    string
	arity   core.Arity
	Rule    Rule
	Target  string
	Ranges  RangeMode
	Tables  []int          // table argument positions for RangeTable
	Keys    []int          // scalar positions that keep their kind instead of becoming numbers
	Returns core.ValueKind // KindEmpty when the result kind follows the arguments
	Doc     string
}

// Name returns the canonical upper-case function name.
func (b *Builtin) Name() string { return b.name }

// Arity returns the accepted argument counts.
func (b *Builtin) Arity() core.Arity { return b.arity }

// Kind returns KindBuiltin.
func (b *Builtin) Kind() Kind { return KindBuiltin }

// AcceptsRange reports whether argument i may be a range reference.
func (b *Builtin) AcceptsRange(i int) bool {
	switch b.Ranges {
	case RangeFlatten:
		return true
	case RangeTable:
		return b.IsTable(i)
	default:
		return false
	}
}

// IsTable reports whether argument i must be a range kept as a grid.
func (b *Builtin) IsTable(i int) bool {
	if b.Ranges != RangeTable {
		return false
	}
	for _, t := range b.Tables {
		if t == AllArgs || t == i {
			return true
		}
		if t == CriteriaPairs && (i == 0 || i%2 == 1) {
			return true
		}
	}
	return false
}

// IsKey reports whether scalar argument i keeps its kind, as a lookup
// value or criterion does.
func (b *Builtin) IsKey(i int) bool {
	for _, k := range b.Keys {
		if k == i {
			return true
		}
	}
	return false
}

// Func is the Go signature of a user-defined function. It must be pure and
// safe for concurrent calls.
type Func func(args ...float64) (float64, error)

// ContextFunc is a Func that honors the cancellation of the evaluation
// calling it.
type ContextFunc func(ctx context.Context, args ...float64) (float64, error)

// UserDefined is a function backed by an externally supplied callable.
type UserDefined struct {
	name  string
	arity core.Arity
	Fn    Func
	// FnContext, when set, is used instead of Fn by CallContext.
	FnContext ContextFunc
	Doc       string
	// Source names where the function came from, such as a .star file.
	Source string
}

// NewUserDefined creates a user-defined descriptor. The name is normalized.
func NewUserDefined(name string, arity core.Arity, fn Func) *UserDefined {
	return &UserDefined{name: Normalize(name), arity: arity, Fn: fn}
}

// NewUserDefinedContext creates a user-defined descriptor whose callable
// receives the context of the evaluation calling it.
func NewUserDefinedContext(name string, arity core.Arity, fn ContextFunc) *UserDefined {
	return &UserDefined{name: Normalize(name), arity: arity, FnContext: fn}
}

// Name returns the canonical upper-case function name.
func (u *UserDefined) Name() string { return u.name }

// Arity returns the accepted argument counts.
func (u *UserDefined) Arity() core.Arity { return u.arity }

// Kind returns KindUserDefined.
func (u *UserDefined) Kind() Kind { return KindUserDefined }

// Call invokes the callable after checking the argument count.
func (u *UserDefined) Call(args ...float64) (float64, error) {
	return u.CallContext(context.Background(), args...)
}

// CallContext is Call passing ctx to a context-aware callable.
func (u *UserDefined) CallContext(ctx context.Context, args ...float64) (float64, error) {
	if !u.arity.Accepts(len(args)) {
		return 0, fmt.Errorf("%s: expects %s arguments, got %d", u.name, u.arity, len(args))
	}
	if u.FnContext != nil {
		return u.FnContext(ctx, args...)
	}
	return u.Fn(args...)
}
