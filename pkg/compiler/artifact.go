package compiler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leapcell/internal/backend"
	"github.com/leapstack-labs/leapcell/internal/codegen"
	"github.com/leapstack-labs/leapcell/pkg/core"
)

// Binding describes one parameter or return value of an artifact.
type Binding struct {
	Name    string
	Address core.Address
	// Kind is the static kind: number, bool or text.
	Kind core.ValueKind
}

// Artifact is a compiled workbook function. It is immutable and safe for
// concurrent calls.
type Artifact struct {
	id       uuid.UUID
	prog     *codegen.Program
	exe      backend.Executable
	backend  string
	defaults map[string]any
}

// ID identifies this compilation.
func (a *Artifact) ID() uuid.UUID { return a.id }

// Source returns the generated Starlark module.
func (a *Artifact) Source() string { return a.prog.Source }

// Backend names the backend that loaded the artifact.
func (a *Artifact) Backend() string { return a.backend }

// Inputs returns the parameters in declaration order.
func (a *Artifact) Inputs() []Binding { return bindings(a.prog.Inputs) }

// Outputs returns the return values in declaration order.
func (a *Artifact) Outputs() []Binding { return bindings(a.prog.Outputs) }

// Order returns the computed cells in evaluation order.
func (a *Artifact) Order() []core.Address {
	return append([]core.Address(nil), a.prog.Order...)
}

func bindings(in []codegen.Binding) []Binding {
	out := make([]Binding, len(in))
	for i, b := range in {
		out[i] = Binding{Name: b.Name, Address: b.Address, Kind: b.Kind}
	}
	return out
}

// Call evaluates the function with inputs given by name. Inputs with a cell
// default may be omitted; other omissions fail with *core.MissingInputError.
// Runtime failures are *core.EvaluationError.
func (a *Artifact) Call(ctx context.Context, args map[string]any) (*Outputs, error) {
	values, err := a.positional(args)
	if err != nil {
		return nil, err
	}
	return a.CallValues(ctx, values...)
}

// CallValues evaluates the function with one value per input, in
// declaration order.
func (a *Artifact) CallValues(ctx context.Context, args ...any) (*Outputs, error) {
	if len(args) != len(a.prog.Inputs) {
		return nil, fmt.Errorf("expected %d inputs, got %d", len(a.prog.Inputs), len(args))
	}
	values, err := a.exe.Invoke(ctx, args)
	if err != nil {
		return nil, err
	}
	return &Outputs{names: a.prog.OutputNames(), values: values}, nil
}

// CallBatch evaluates one call per row, concurrently. Results and errors
// are in row order; a failed row does not stop the others.
func (a *Artifact) CallBatch(ctx context.Context, rows []map[string]any) ([]*Outputs, []error) {
	results := make([]*Outputs, len(rows))
	errs := make([]error, len(rows))

	var (
		valid [][]any
		index []int
	)
	for i, row := range rows {
		values, err := a.positional(row)
		if err != nil {
			errs[i] = err
			continue
		}
		valid = append(valid, values)
		index = append(index, i)
	}

	values, callErrs := a.exe.InvokeBatch(ctx, valid)
	names := a.prog.OutputNames()
	for j, i := range index {
		if callErrs[j] != nil {
			errs[i] = callErrs[j]
			continue
		}
		results[i] = &Outputs{names: names, values: values[j]}
	}
	return results, errs
}

// positional orders named arguments by input declaration.
func (a *Artifact) positional(args map[string]any) ([]any, error) {
	known := make(map[string]bool, len(a.prog.Inputs))
	values := make([]any, len(a.prog.Inputs))
	var missing []string
	for i, in := range a.prog.Inputs {
		known[in.Name] = true
		v, ok := args[in.Name]
		if !ok {
			v, ok = a.defaults[in.Name]
		}
		if !ok {
			missing = append(missing, in.Name)
			continue
		}
		values[i] = v
	}
	for name := range args {
		if !known[name] {
			return nil, &core.InvalidBindingError{Name: name, Reason: "not an input of this function"}
		}
	}
	if len(missing) > 0 {
		return nil, &core.MissingInputError{Names: missing}
	}
	return values, nil
}

// Outputs holds the values returned by one call, in declaration order.
// Values are float64, bool or string.
type Outputs struct {
	names  []string
	values []any
}

// Names returns the output names.
func (o *Outputs) Names() []string { return o.names }

// Values returns the output values.
func (o *Outputs) Values() []any { return o.values }

// Get returns the value of the named output.
func (o *Outputs) Get(name string) (any, bool) {
	for i, n := range o.names {
		if n == name {
			return o.values[i], true
		}
	}
	return nil, false
}

// Float returns the named output as a number. Booleans count as 1 and 0.
func (o *Outputs) Float(name string) (float64, error) {
	v, ok := o.Get(name)
	if !ok {
		return 0, fmt.Errorf("no output named %q", name)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("output %q is %T, not a number", name, v)
	}
}

// Map returns the outputs keyed by name.
func (o *Outputs) Map() map[string]any {
	m := make(map[string]any, len(o.names))
	for i, n := range o.names {
		m[n] = o.values[i]
	}
	return m
}
