package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/token"
)

// anyArity is used when no catalog is configured.
var anyArity = core.AtLeast(0)

// parsePrimary parses literals, references, calls and parenthesized expressions.
func (p *Parser) parsePrimary() Node {
	tok := p.token

	switch tok.Type {
	case token.NUMBER:
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorAt(tok, fmt.Sprintf(ErrInvalidNumber, tok.Literal))
			return nil
		}
		p.nextToken()
		return &Literal{Value: core.Number(f), At: tok.Pos}

	case token.STRING:
		p.nextToken()
		return &Literal{Value: core.Text(tok.Literal), At: tok.Pos}

	case token.LPAREN:
		return p.parseParen()

	case token.SHEET:
		p.nextToken()
		if !p.expect(token.BANG) {
			return nil
		}
		return p.parseReference(tok.Literal, tok.Pos)

	case token.IDENT:
		if p.checkPeek(token.LPAREN) {
			return p.parseCall()
		}
		if p.checkPeek(token.BANG) {
			p.nextToken() // sheet
			p.nextToken() // !
			return p.parseReference(tok.Literal, tok.Pos)
		}
		switch strings.ToUpper(tok.Literal) {
		case "TRUE":
			p.nextToken()
			return &Literal{Value: core.Bool(true), At: tok.Pos}
		case "FALSE":
			p.nextToken()
			return &Literal{Value: core.Bool(false), At: tok.Pos}
		}
		if _, err := core.ParseLocal(p.sheet, tok.Literal); err != nil {
			p.errorAt(tok, fmt.Sprintf(ErrUnknownName, tok.Literal))
			return nil
		}
		return p.parseReference(p.sheet, tok.Pos)

	case token.ILLEGAL:
		switch {
		case strings.HasPrefix(tok.Literal, `"`):
			p.errorAt(tok, ErrUnterminatedString)
		case strings.HasPrefix(tok.Literal, "'"):
			p.errorAt(tok, ErrUnterminatedSheet)
		default:
			p.errorAt(tok, fmt.Sprintf(ErrIllegalChar, tok.Literal))
		}
		return nil

	case token.EOF:
		p.errorAt(tok, ErrUnexpectedEnd)
		return nil

	default:
		p.errorAt(tok, fmt.Sprintf(ErrUnexpectedToken, p.describe(tok), "operand"))
		return nil
	}
}

// parseReference parses CELL [":" [sheet "!"] CELL] on sheet; the current
// token is the first cell.
func (p *Parser) parseReference(sheet string, at token.Position) Node {
	from, ok := p.parseCellToken(sheet)
	if !ok {
		return nil
	}
	if !p.match(token.COLON) {
		return &CellRef{Address: from, At: at}
	}

	toSheet := sheet
	switch {
	case p.check(token.SHEET), p.check(token.IDENT) && p.checkPeek(token.BANG):
		toSheet = p.token.Literal
		p.nextToken()
		if !p.expect(token.BANG) {
			return nil
		}
	}
	second := p.token
	to, ok := p.parseCellToken(toSheet)
	if !ok {
		return nil
	}
	r, err := core.NewRange(from, to)
	if err != nil {
		p.errorAt(second, fmt.Sprintf(ErrRangeSpansSheets, from.String()+":"+to.String()))
		return nil
	}
	return &RangeRef{Range: r, At: at}
}

// parseCellToken consumes one IDENT holding an A1-style cell reference.
func (p *Parser) parseCellToken(sheet string) (core.Address, bool) {
	tok := p.token
	if !p.check(token.IDENT) {
		p.expect(token.IDENT)
		return core.Address{}, false
	}
	addr, err := core.ParseLocal(sheet, tok.Literal)
	if err != nil {
		p.errorAt(tok, fmt.Sprintf(ErrInvalidReference, tok.Literal))
		return core.Address{}, false
	}
	p.nextToken()
	return addr, true
}

// normalizeName upper-cases a function name and drops the "_xlfn." prefix
// newer spreadsheet files store for recently added functions.
func normalizeName(name string) string {
	upper := strings.ToUpper(name)
	return strings.TrimPrefix(upper, "_XLFN.")
}
