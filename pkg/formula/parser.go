// Package formula parses spreadsheet formulas into expression trees.
//
// # Usage
//
//	node, err := formula.Parse("=A1*2+1", "Sheet1", functions.Default())
//
// # Grammar
//
// Loosest to tightest binding:
//
//	comparison  → concat { ("=" | "<>" | "<" | ">" | "<=" | ">=") concat }
//	concat      → additive { "&" additive }
//	additive    → term { ("+" | "-") term }
//	term        → power { ("*" | "/") power }
//	power       → unary [ "^" power ]
//	unary       → ("-" | "+") unary | postfix
//	postfix     → primary { "%" }
//	primary     → NUMBER | STRING | TRUE | FALSE | call | reference | "(" comparison ")"
//	call        → NAME "(" [ comparison { "," comparison } ] ")"
//	reference   → [ sheet "!" ] CELL [ ":" [ sheet "!" ] CELL ]
//
// A sign binds tighter than "^", so -2^2 is 4.
package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/token"
)

// Catalog validates function calls at parse time.
type Catalog interface {
	// Signature returns the canonical name and arity of a function, or
	// a *core.UnsupportedFunctionError when the name is not registered.
	Signature(name string) (string, core.Arity, error)
}

// Parser parses one formula into an expression tree.
type Parser struct {
	lexer  *Lexer
	src    string
	sheet  string
	funcs  Catalog
	token  token.Token // current token
	peek   token.Token // lookahead token
	errors []error
}

// NewParser creates a parser for src; unqualified references resolve to sheet.
// A nil catalog accepts any function name with any number of arguments.
func NewParser(src, sheet string, funcs Catalog) *Parser {
	p := &Parser{
		lexer: NewLexer(src),
		src:   src,
		sheet: sheet,
		funcs: funcs,
	}
	// Read two tokens to initialize current and peek
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses formula text with an optional leading "=". Error positions
// refer to text as given, counting the "=" and any leading space.
func Parse(text, sheet string, funcs Catalog) (Node, error) {
	src, start := stripFormula(text)
	p := NewParser(src, sheet, funcs)
	node := p.parseFormula()
	if len(p.errors) > 0 {
		if pe, ok := p.errors[0].(*core.ParseError); ok {
			pe.Pos = shift(pe.Pos, start)
		}
		return nil, p.errors[0]
	}
	return node, nil
}

// stripFormula removes surrounding space and the leading "=" from text. It
// returns the rest and the position in text where the rest starts.
func stripFormula(text string) (string, token.Position) {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	lead := text[:len(text)-len(trimmed)]
	src := strings.TrimRightFunc(trimmed, unicode.IsSpace)
	if rest, ok := strings.CutPrefix(src, "="); ok {
		lead += "="
		src = rest
	}

	start := token.Position{Line: 1, Column: 1, Offset: len(lead)}
	if i := strings.LastIndexByte(lead, '\n'); i >= 0 {
		start.Line += strings.Count(lead, "\n")
		start.Column = len(lead) - i
	} else {
		start.Column += len(lead)
	}
	return src, start
}

// shift moves pos, taken relative to start, into the enclosing text.
func shift(pos, start token.Position) token.Position {
	if !pos.IsValid() {
		return pos
	}
	if pos.Line == 1 {
		pos.Column += start.Column - 1
	}
	pos.Line += start.Line - 1
	pos.Offset += start.Offset
	return pos
}

// ParseCell parses the formula stored at addr and attributes errors to it.
func ParseCell(addr core.Address, text string, funcs Catalog) (Node, error) {
	node, err := Parse(text, addr.Sheet, funcs)
	if err != nil {
		switch e := err.(type) {
		case *core.ParseError:
			e.Address = addr
		case *core.UnsupportedFunctionError:
			e.Address = addr
		}
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseFormula() Node {
	if p.check(token.EOF) {
		p.errorAt(p.token, ErrEmptyFormula)
		return nil
	}
	node := p.parseExpression()
	if node == nil {
		return nil
	}
	switch {
	case p.check(token.ILLEGAL):
		p.parsePrimary()
		return nil
	case !p.check(token.EOF):
		p.errorAt(p.token, fmt.Sprintf(ErrTrailingInput, p.describe(p.token)))
		return nil
	}
	return node
}

// ---------- Token Helpers ----------

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.lexer.NextToken()
}

// check returns true if the current token is of the given type.
func (p *Parser) check(t token.TokenType) bool {
	return p.token.Type == t
}

// checkPeek returns true if the peek token is of the given type.
func (p *Parser) checkPeek(t token.TokenType) bool {
	return p.peek.Type == t
}

// match consumes the current token if it matches and returns true.
func (p *Parser) match(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes the current token if it matches, otherwise adds an error.
func (p *Parser) expect(t token.TokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	if p.check(token.EOF) {
		p.errorAt(p.token, ErrUnexpectedEnd)
		return false
	}
	p.errorAt(p.token, fmt.Sprintf(ErrUnexpectedToken, p.describe(p.token), t))
	return false
}

// errorAt records a parse error located at tok.
func (p *Parser) errorAt(tok token.Token, msg string) {
	p.errors = append(p.errors, &core.ParseError{
		Formula: p.src,
		Pos:     tok.Pos,
		Near:    tok.Span().Slice(p.src),
		Message: msg,
	})
}

// describe names a token for error messages.
func (p *Parser) describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of formula"
	case token.IDENT, token.NUMBER:
		return strconv.Quote(tok.Literal)
	case token.STRING:
		return "string literal"
	default:
		return tok.Type.String()
	}
}
