package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapcell/pkg/token"
)

// Sentinel errors. Every typed error below matches its sentinel with errors.Is.
var (
	ErrParse               = errors.New("parse error")
	ErrUnsupportedFunction = errors.New("unsupported function")
	ErrUnresolvedReference = errors.New("unresolved reference")
	ErrUnsupportedExpr     = errors.New("unsupported expression")
	ErrCircularReference   = errors.New("circular reference")
	ErrDuplicateBinding    = errors.New("duplicate binding")
	ErrDuplicateFunction   = errors.New("duplicate function")
	ErrInvalidBinding      = errors.New("invalid binding")
	ErrMissingOutput       = errors.New("missing output")
	ErrMissingInput        = errors.New("missing input")
	ErrBackendCompilation  = errors.New("backend compilation failed")
	ErrEvaluation          = errors.New("evaluation failed")
)

// ParseError reports malformed formula syntax or a function arity mismatch.
type ParseError struct {
	Formula string         // formula text as stored, without "="
	Address Address        // owning cell, zero when parsed standalone
	Pos     token.Position // position in the text as written, "=" included
	Near    string         // offending substring
	Message string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if !e.Address.IsZero() {
		b.WriteString(e.Address.String())
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
	if e.Near != "" {
		fmt.Fprintf(&b, " near %q", e.Near)
	}
	if e.Formula != "" {
		fmt.Fprintf(&b, " in =%s", e.Formula)
	}
	return b.String()
}

// Is matches ErrParse.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// UnsupportedFunctionError reports a function name with no registry entry.
type UnsupportedFunctionError struct {
	Name    string
	Address Address // zero when unknown
}

func (e *UnsupportedFunctionError) Error() string {
	if e.Address.IsZero() {
		return fmt.Sprintf("unsupported function %s", e.Name)
	}
	return fmt.Sprintf("%s: unsupported function %s", e.Address, e.Name)
}

// Is matches ErrUnsupportedFunction.
func (e *UnsupportedFunctionError) Is(target error) bool { return target == ErrUnsupportedFunction }

// UnresolvedReferenceError reports a reference to a sheet or cell with no content.
type UnresolvedReferenceError struct {
	Ref    Address
	From   Address // referencing cell, zero for declared bindings
	Reason string
}

func (e *UnresolvedReferenceError) Error() string {
	msg := fmt.Sprintf("unresolved reference %s", e.Ref)
	if !e.From.IsZero() {
		msg += " in " + e.From.String()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is matches ErrUnresolvedReference.
func (e *UnresolvedReferenceError) Is(target error) bool { return target == ErrUnresolvedReference }

// UnsupportedExpressionError reports a construct that cannot be lowered.
type UnsupportedExpressionError struct {
	Address Address
	Expr    string
	Reason  string
}

func (e *UnsupportedExpressionError) Error() string {
	return fmt.Sprintf("%s: unsupported expression %s: %s", e.Address, e.Expr, e.Reason)
}

// Is matches ErrUnsupportedExpr.
func (e *UnsupportedExpressionError) Is(target error) bool { return target == ErrUnsupportedExpr }

// CircularReferenceError carries one full cycle in dependency order:
// each address reads the next, and the last reads the first.
type CircularReferenceError struct {
	Cycle []Address
}

func (e *CircularReferenceError) Error() string {
	parts := make([]string, 0, len(e.Cycle)+1)
	for _, a := range e.Cycle {
		parts = append(parts, a.String())
	}
	if len(e.Cycle) > 0 {
		parts = append(parts, e.Cycle[0].String())
	}
	return "circular reference: " + strings.Join(parts, " -> ")
}

// Is matches ErrCircularReference.
func (e *CircularReferenceError) Is(target error) bool { return target == ErrCircularReference }

// DuplicateBindingError reports a name or address bound twice within one role.
type DuplicateBindingError struct {
	Role     Role
	Name     string
	Address  Address
	Existing string // name of the binding already holding the address or name
	ByName   bool   // true when the name collided, false when the address did
}

func (e *DuplicateBindingError) Error() string {
	if e.ByName {
		return fmt.Sprintf("duplicate %s binding: name %q is already bound", e.Role, e.Name)
	}
	return fmt.Sprintf("duplicate %s binding: %s is already bound as %q", e.Role, e.Address, e.Existing)
}

// Is matches ErrDuplicateBinding.
func (e *DuplicateBindingError) Is(target error) bool { return target == ErrDuplicateBinding }

// DuplicateFunctionError reports a second registration of a function name.
type DuplicateFunctionError struct {
	Name string
}

func (e *DuplicateFunctionError) Error() string {
	return fmt.Sprintf("function %s is already registered", e.Name)
}

// Is matches ErrDuplicateFunction.
func (e *DuplicateFunctionError) Is(target error) bool { return target == ErrDuplicateFunction }

// InvalidBindingError reports an unusable binding name or address.
type InvalidBindingError struct {
	Name   string
	Reason string
}

func (e *InvalidBindingError) Error() string {
	return fmt.Sprintf("invalid binding %q: %s", e.Name, e.Reason)
}

// Is matches ErrInvalidBinding.
func (e *InvalidBindingError) Is(target error) bool { return target == ErrInvalidBinding }

// MissingOutputError reports a compile request with no declared outputs.
type MissingOutputError struct{}

func (e *MissingOutputError) Error() string {
	return "no outputs declared"
}

// Is matches ErrMissingOutput.
func (e *MissingOutputError) Is(target error) bool { return target == ErrMissingOutput }

// MissingInputError lists required inputs absent from an invocation.
type MissingInputError struct {
	Names []string
}

func (e *MissingInputError) Error() string {
	return "missing input: " + strings.Join(e.Names, ", ")
}

// Is matches ErrMissingInput.
func (e *MissingInputError) Is(target error) bool { return target == ErrMissingInput }

// BackendCompilationError wraps a failure reported by an executable backend.
type BackendCompilationError struct {
	Backend string
	Err     error
}

func (e *BackendCompilationError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Backend, e.Err)
}

func (e *BackendCompilationError) Unwrap() error { return e.Err }

// Is matches ErrBackendCompilation.
func (e *BackendCompilationError) Is(target error) bool { return target == ErrBackendCompilation }

// EvaluationError wraps a runtime failure of a compiled function,
// such as division by zero or a lookup with no match.
type EvaluationError struct {
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed: %v", e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Is matches ErrEvaluation.
func (e *EvaluationError) Is(target error) bool { return target == ErrEvaluation }
