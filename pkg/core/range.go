package core

import (
	"fmt"
	"strings"
)

// Range is a rectangular block of cells on one sheet.
// From is always the top-left corner and To the bottom-right.
type Range struct {
	From Address
	To   Address
}

// NewRange builds a normalized range from two corners on the same sheet.
func NewRange(a, b Address) (Range, error) {
	if a.Sheet != b.Sheet {
		return Range{}, fmt.Errorf("range %s:%s spans sheets", a, b.Local())
	}
	r := Range{
		From: Address{Sheet: a.Sheet, Col: min(a.Col, b.Col), Row: min(a.Row, b.Row)},
		To:   Address{Sheet: a.Sheet, Col: max(a.Col, b.Col), Row: max(a.Row, b.Row)},
	}
	return r, nil
}

// ParseRange parses "A1:B3" or "Sheet2!A1:B3"; unqualified ranges resolve to sheet.
func ParseRange(sheet, ref string) (Range, error) {
	ref = strings.TrimSpace(ref)
	if name, local, ok := SplitSheet(ref); ok {
		sheet, ref = name, local
	}
	left, right, ok := strings.Cut(ref, ":")
	if !ok {
		return Range{}, fmt.Errorf("invalid range %q", ref)
	}
	a, err := ParseLocal(sheet, left)
	if err != nil {
		return Range{}, err
	}
	b, err := ParseLocal(sheet, right)
	if err != nil {
		return Range{}, err
	}
	return NewRange(a, b)
}

// Rows returns the number of rows in the range.
func (r Range) Rows() int { return r.To.Row - r.From.Row + 1 }

// Cols returns the number of columns in the range.
func (r Range) Cols() int { return r.To.Col - r.From.Col + 1 }

// Len returns the number of cells in the range.
func (r Range) Len() int { return r.Rows() * r.Cols() }

// Contains reports whether a lies inside the range.
func (r Range) Contains(a Address) bool {
	return a.Sheet == r.From.Sheet &&
		a.Row >= r.From.Row && a.Row <= r.To.Row &&
		a.Col >= r.From.Col && a.Col <= r.To.Col
}

// Cells enumerates the range row by row, left to right.
func (r Range) Cells() []Address {
	out := make([]Address, 0, r.Len())
	for row := r.From.Row; row <= r.To.Row; row++ {
		for col := r.From.Col; col <= r.To.Col; col++ {
			out = append(out, Address{Sheet: r.From.Sheet, Col: col, Row: row})
		}
	}
	return out
}

func (r Range) String() string {
	return r.From.String() + ":" + r.To.Local()
}
