package core

import "fmt"

// Arity bounds the number of arguments a function accepts.
// A negative Max means there is no upper bound.
type Arity struct {
	Min int
	Max int
}

// Exactly returns an arity accepting exactly n arguments.
func Exactly(n int) Arity { return Arity{Min: n, Max: n} }

// AtLeast returns a variadic arity accepting n or more arguments.
func AtLeast(n int) Arity { return Arity{Min: n, Max: -1} }

// Between returns an arity accepting lo through hi arguments.
func Between(lo, hi int) Arity { return Arity{Min: lo, Max: hi} }

// Variadic reports whether the arity has no upper bound.
func (a Arity) Variadic() bool { return a.Max < 0 }

// Accepts reports whether n arguments satisfy the arity.
func (a Arity) Accepts(n int) bool {
	return n >= a.Min && (a.Max < 0 || n <= a.Max)
}

func (a Arity) String() string {
	switch {
	case a.Max < 0:
		return fmt.Sprintf("at least %d", a.Min)
	case a.Min == a.Max:
		return fmt.Sprintf("%d", a.Min)
	default:
		return fmt.Sprintf("%d to %d", a.Min, a.Max)
	}
}
