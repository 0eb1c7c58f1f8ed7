package formula

// Common error messages
const (
	ErrUnexpectedToken    = "unexpected token %s, expected %s"
	ErrUnexpectedEnd      = "unexpected end of formula"
	ErrTrailingInput      = "unexpected %s after end of expression"
	ErrUnterminatedString = "unterminated string literal"
	ErrUnterminatedSheet  = "unterminated sheet name"
	ErrIllegalChar        = "illegal character %q"
	ErrInvalidNumber      = "invalid number literal %q"
	ErrUnknownName        = "unknown name %q"
	ErrInvalidReference   = "invalid cell reference %q"
	ErrRangeSpansSheets   = "range %s spans sheets"
	ErrEmptyArgument      = "empty argument in call to %s"
	ErrArity              = "function %s expects %s arguments, got %d"
	ErrEmptyFormula       = "empty formula"
)
