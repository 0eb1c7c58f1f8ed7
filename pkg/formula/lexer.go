package formula

import (
	"github.com/leapstack-labs/leapcell/pkg/token"
)

// Lexer tokenizes formula text.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
	col     int  // current column number (1-based)
}

// NewLexer creates a new Lexer for the given formula text.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.col++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// currentPos returns the current position.
func (l *Lexer) currentPos() token.Position {
	return token.Position{
		Line:   l.line,
		Column: l.col,
		Offset: l.pos,
	}
}

// atEOF distinguishes end of input from a literal NUL byte.
func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()

	pos := l.currentPos()

	if l.atEOF() {
		return token.Token{Type: token.EOF, Pos: pos, End: pos}
	}

	switch l.ch {
	case '+':
		return l.single(token.PLUS, pos)
	case '-':
		return l.single(token.MINUS, pos)
	case '*':
		return l.single(token.STAR, pos)
	case '/':
		return l.single(token.SLASH, pos)
	case '^':
		return l.single(token.CARET, pos)
	case '&':
		return l.single(token.AMP, pos)
	case '%':
		return l.single(token.PERCENT, pos)
	case '=':
		return l.single(token.EQ, pos)
	case '!':
		return l.single(token.BANG, pos)
	case ':':
		return l.single(token.COLON, pos)
	case ',':
		return l.single(token.COMMA, pos)
	case '(':
		return l.single(token.LPAREN, pos)
	case ')':
		return l.single(token.RPAREN, pos)
	case '<':
		switch l.peekChar() {
		case '=':
			l.readChar()
			return l.single(token.LE, pos)
		case '>':
			l.readChar()
			return l.single(token.NE, pos)
		}
		return l.single(token.LT, pos)
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			return l.single(token.GE, pos)
		}
		return l.single(token.GT, pos)
	case '"':
		return l.readQuoted('"', token.STRING, pos)
	case '\'':
		return l.readQuoted('\'', token.SHEET, pos)
	}

	if isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())) {
		return l.readNumber(pos)
	}
	if isIdentStart(l.ch) {
		return l.readIdent(pos)
	}
	return l.single(token.ILLEGAL, pos)
}

// single consumes the current char and returns a token ending after it.
// Two-char operators advance once before calling single.
func (l *Lexer) single(t token.TokenType, pos token.Position) token.Token {
	l.readChar()
	return token.Token{
		Type:    t,
		Literal: l.input[pos.Offset:l.pos],
		Pos:     pos,
		End:     l.currentPos(),
	}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readNumber reads 12, 1.5, .5, 1e10 and 2.5E-3.
func (l *Lexer) readNumber(pos token.Position) token.Token {
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	return token.Token{
		Type:    token.NUMBER,
		Literal: l.input[pos.Offset:l.pos],
		Pos:     pos,
		End:     l.currentPos(),
	}
}

// readIdent reads names, cell references and function names.
func (l *Lexer) readIdent(pos token.Position) token.Token {
	for isIdentPart(l.ch) {
		l.readChar()
	}
	return token.Token{
		Type:    token.IDENT,
		Literal: l.input[pos.Offset:l.pos],
		Pos:     pos,
		End:     l.currentPos(),
	}
}

// readQuoted reads a string or quoted sheet name; a doubled quote escapes itself.
// An unterminated literal yields ILLEGAL.
func (l *Lexer) readQuoted(quote byte, t token.TokenType, pos token.Position) token.Token {
	var buf []byte
	l.readChar() // opening quote
	for {
		if l.atEOF() {
			return token.Token{
				Type:    token.ILLEGAL,
				Literal: l.input[pos.Offset:],
				Pos:     pos,
				End:     l.currentPos(),
			}
		}
		if l.ch == quote {
			if l.peekChar() == quote {
				buf = append(buf, quote)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // closing quote
			break
		}
		buf = append(buf, l.ch)
		l.readChar()
	}
	return token.Token{
		Type:    t,
		Literal: string(buf),
		Pos:     pos,
		End:     l.currentPos(),
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '$'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '.'
}
