// Package token defines the lexical tokens of spreadsheet formulas.
package token

import "fmt"

// TokenType represents the type of a lexical token.
//
//nolint:revive // Accept stutter as token.TokenType is clear and widely used
type TokenType int32

const (
	// Special tokens
	EOF TokenType = iota
	ILLEGAL

	// Literals
	IDENT  // SUM, A1, $B$2, TRUE, Sheet1
	NUMBER // 12, 1.5, .5, 1e-3
	STRING // "text"
	SHEET  // 'My Sheet'

	// Operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	CARET   // ^
	AMP     // &
	PERCENT // %
	EQ      // =
	NE      // <>
	LT      // <
	GT      // >
	LE      // <=
	GE      // >=

	// Delimiters
	BANG   // !
	COLON  // :
	COMMA  // ,
	LPAREN // (
	RPAREN // )
)

var tokenNames = [...]string{
	EOF:     "EOF",
	ILLEGAL: "ILLEGAL",
	IDENT:   "IDENT",
	NUMBER:  "NUMBER",
	STRING:  "STRING",
	SHEET:   "SHEET",
	PLUS:    "+",
	MINUS:   "-",
	STAR:    "*",
	SLASH:   "/",
	CARET:   "^",
	AMP:     "&",
	PERCENT: "%",
	EQ:      "=",
	NE:      "<>",
	LT:      "<",
	GT:      ">",
	LE:      "<=",
	GE:      ">=",
	BANG:    "!",
	COLON:   ":",
	COMMA:   ",",
	LPAREN:  "(",
	RPAREN:  ")",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) && tokenNames[t] != "" {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int32(t))
}

// IsOperator returns true if the token is a prefix, infix or postfix operator.
func IsOperator(t TokenType) bool {
	return t >= PLUS && t <= GE
}

// IsComparison returns true for the comparison operators.
func IsComparison(t TokenType) bool {
	return t >= EQ && t <= GE
}

// Token is a lexical token with its source span.
type Token struct {
	Type    TokenType
	Literal string   // unquoted for STRING and SHEET
	Pos     Position // first byte of the token
	End     Position // just past the last byte of the token
}

// Span returns the source span covered by the token.
func (t Token) Span() Span {
	return Span{Start: t.Pos, End: t.End}
}
