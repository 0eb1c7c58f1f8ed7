package core

import (
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

// Value kinds.
const (
	KindEmpty ValueKind = iota
	KindNumber
	KindText
	KindBool
	KindFormula
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindFormula:
		return "formula"
	default:
		return "empty"
	}
}

// Value is the raw content of a cell: a literal or formula text.
type Value struct {
	Kind   ValueKind
	Number float64
	Text   string // text literal, or formula source without the leading "="
	Bool   bool
}

// Number returns a numeric literal value.
func Number(f float64) Value { return Value{Kind: KindNumber, Number: f} }

// Text returns a text literal value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Bool returns a boolean literal value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Formula returns a formula value. A leading "=" is stripped.
func Formula(src string) Value {
	return Value{Kind: KindFormula, Text: strings.TrimPrefix(src, "=")}
}

// IsFormula reports whether v holds formula text.
func (v Value) IsFormula() bool { return v.Kind == KindFormula }

// IsEmpty reports whether v holds nothing.
func (v Value) IsEmpty() bool { return v.Kind == KindEmpty }

// ParseRaw interprets loader text: "=..." is a formula, numerals are numbers,
// TRUE/FALSE are booleans, empty text is empty and anything else is text.
func ParseRaw(raw string) Value {
	if strings.HasPrefix(raw, "=") {
		return Formula(raw)
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{}
	}
	if f, ok := ParseNumber(s); ok {
		return Number(f)
	}
	switch strings.ToUpper(s) {
	case "TRUE":
		return Bool(true)
	case "FALSE":
		return Bool(false)
	}
	return Text(raw)
}

// ParseNumber parses a decimal numeral such as "12", "-0.5", ".5" or
// "1e-3". Hexadecimal forms, digit separators, infinities, NaN and values
// out of float64 range are not numerals.
func ParseNumber(s string) (float64, bool) {
	if !isDecimal(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isDecimal(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(s) && isDigit(s[i]); i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && isDigit(s[i]); i++ {
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for ; i < len(s) && isDigit(s[i]); i++ {
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Raw renders v back to loader text; ParseRaw(v.Raw()) reproduces v for
// formulas, numbers and booleans.
func (v Value) Raw() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindText:
		return v.Text
	case KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case KindFormula:
		return "=" + v.Text
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.Kind == KindText {
		return strconv.Quote(v.Text)
	}
	return v.Raw()
}

// FormatNumber renders f the way a spreadsheet shows a number in text:
// at most 15 significant digits, no trailing zeros, integers without a
// decimal point.
func FormatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	s := strconv.FormatFloat(f, 'G', 15, 64)
	if mant, exp, ok := strings.Cut(s, "E"); ok {
		if strings.Contains(mant, ".") {
			mant = strings.TrimRight(strings.TrimRight(mant, "0"), ".")
		}
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if len(digits) < 2 {
			digits = strings.Repeat("0", 2-len(digits)) + digits
		}
		return mant + "E" + sign + digits
	}
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
