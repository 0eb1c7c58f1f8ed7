package formula

import (
	"fmt"

	"github.com/leapstack-labs/leapcell/pkg/token"
)

// Expression precedence parsing using a Pratt parser.
//
// Precedence levels:
//
//	precedenceNone       = 0
//	precedenceComparison = 1  (=, <>, <, >, <=, >=)
//	precedenceConcat     = 2  (&)
//	precedenceAddition   = 3  (+, -)
//	precedenceMultiply   = 4  (*, /)
//	precedencePower      = 5  (^, right-associative)
//
// Signs and the postfix percent bind tighter than every infix operator.
const (
	precedenceNone = iota
	precedenceComparison
	precedenceConcat
	precedenceAddition
	precedenceMultiply
	precedencePower
)

// parseExpression parses an expression using precedence climbing.
func (p *Parser) parseExpression() Node {
	return p.parseExpressionWithPrecedence(precedenceNone + 1)
}

// parseExpressionWithPrecedence implements Pratt parsing.
func (p *Parser) parseExpressionWithPrecedence(minPrecedence int) Node {
	left := p.parseUnary()
	if left == nil {
		return nil
	}

	// Parse infix operators while their precedence is >= minPrecedence
	for {
		prec := infixPrecedence(p.token.Type)
		if prec == precedenceNone || prec < minPrecedence {
			break
		}

		op := p.token
		p.nextToken()

		// "^" is right-associative: its right operand may contain another "^".
		next := prec + 1
		if op.Type == token.CARET {
			next = prec
		}
		right := p.parseExpressionWithPrecedence(next)
		if right == nil {
			return nil
		}
		left = &BinaryExpr{Op: op.Type, Left: left, Right: right, At: op.Pos}
	}

	return left
}

// infixPrecedence returns the precedence of t as an infix operator.
func infixPrecedence(t token.TokenType) int {
	switch t {
	case token.EQ, token.NE, token.LT, token.GT, token.LE, token.GE:
		return precedenceComparison
	case token.AMP:
		return precedenceConcat
	case token.PLUS, token.MINUS:
		return precedenceAddition
	case token.STAR, token.SLASH:
		return precedenceMultiply
	case token.CARET:
		return precedencePower
	default:
		return precedenceNone
	}
}

// parseUnary parses prefix signs.
func (p *Parser) parseUnary() Node {
	if p.check(token.MINUS) || p.check(token.PLUS) {
		op := p.token
		p.nextToken()
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		return &UnaryExpr{Op: op.Type, X: x, At: op.Pos}
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary followed by any number of "%".
func (p *Parser) parsePostfix() Node {
	x := p.parsePrimary()
	if x == nil {
		return nil
	}
	for p.check(token.PERCENT) {
		p.nextToken()
		x = &UnaryExpr{Op: token.PERCENT, X: x, At: x.Pos()}
	}
	return x
}

// parseParen parses a parenthesized sub-expression.
func (p *Parser) parseParen() Node {
	p.nextToken() // consume (
	x := p.parseExpression()
	if x == nil {
		return nil
	}
	if !p.expect(token.RPAREN) {
		return nil
	}
	return x
}

// parseCall parses NAME "(" args ")" and validates it against the catalog.
func (p *Parser) parseCall() Node {
	nameTok := p.token
	p.nextToken() // name
	p.nextToken() // (

	name := normalizeName(nameTok.Literal)
	arity := anyArity
	if p.funcs != nil {
		canonical, a, err := p.funcs.Signature(name)
		if err != nil {
			p.errors = append(p.errors, err)
			return nil
		}
		name, arity = canonical, a
	}

	var args []Node
	if !p.check(token.RPAREN) {
		for {
			if p.check(token.COMMA) || p.check(token.RPAREN) {
				p.errorAt(p.token, fmt.Sprintf(ErrEmptyArgument, name))
				return nil
			}
			arg := p.parseExpression()
			if arg == nil {
				return nil
			}
			args = append(args, arg)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	if !p.expect(token.RPAREN) {
		return nil
	}

	if !arity.Accepts(len(args)) {
		p.errorAt(nameTok, fmt.Sprintf(ErrArity, name, arity, len(args)))
		return nil
	}
	return &CallExpr{Name: name, Args: args, At: nameTok.Pos}
}
