// Package parser implements a recursive-descent parser that turns formula
// text into an ast.Node tree.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vimeh/gridcore/address"
	"github.com/vimeh/gridcore/ast"
	"github.com/vimeh/gridcore/lexer"
	"github.com/vimeh/gridcore/token"
)

// ParseError is a human-readable parse failure, optionally carrying the
// character offset at which it was detected.
type ParseError struct {
	Message string
	Offset  int
}

func (e *ParseError) Error() string {
	return e.Message
}

// Parser turns a token stream into an AST. Parsing is total: any
// unexpected token yields a ParseError rather than a panic.
type Parser struct {
	l *lexer.Lexer

	curToken  token.Token
	peekToken token.Token

	err *ParseError
}

// New returns a Parser reading from l.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	p.next()
	p.next()
	return p
}

// Parse parses src as a formula. A leading '=' is consumed if present; the
// remainder is parsed as an expression. Parse never panics: malformed input
// produces a *ParseError.
func Parse(src string) (ast.Node, error) {
	src = strings.TrimPrefix(src, "=")
	p := New(lexer.New(src))
	node := p.parseExpr()
	if p.err != nil {
		return nil, p.err
	}
	if p.curToken.Type != token.EOF {
		return nil, &ParseError{Message: fmt.Sprintf("unexpected trailing token %q", p.curToken.Lit), Offset: p.curToken.Offset}
	}
	return node, nil
}

func (p *Parser) next() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) fail(format string, args ...any) {
	if p.err != nil {
		return
	}
	p.err = &ParseError{Message: fmt.Sprintf(format, args...), Offset: p.curToken.Offset}
}

func (p *Parser) failed() bool { return p.err != nil }

// expr → comparison
func (p *Parser) parseExpr() ast.Node {
	return p.parseComparison()
}

var comparisonOps = map[token.Type]string{
	token.EQ: "=", token.NEQ: "<>", token.LT: "<", token.GT: ">", token.LE: "<=", token.GE: ">=",
}

// comparison → concat (('=' | '<>' | '<' | '>' | '<=' | '>=') concat)*
func (p *Parser) parseComparison() ast.Node {
	x := p.parseConcat()
	for {
		op, ok := comparisonOps[p.curToken.Type]
		if !ok || p.failed() {
			return x
		}
		p.next()
		y := p.parseConcat()
		x = &ast.BinaryExpr{Op: op, X: x, Y: y}
	}
}

// concat → additive ('&' additive)*
func (p *Parser) parseConcat() ast.Node {
	x := p.parseAdditive()
	for p.curToken.Type == token.AMPERSAND && !p.failed() {
		p.next()
		y := p.parseAdditive()
		x = &ast.BinaryExpr{Op: "&", X: x, Y: y}
	}
	return x
}

// additive → multiplicative (('+' | '-') multiplicative)*
func (p *Parser) parseAdditive() ast.Node {
	x := p.parseMultiplicative()
	for (p.curToken.Type == token.PLUS || p.curToken.Type == token.MINUS) && !p.failed() {
		op := string(p.curToken.Type)
		p.next()
		y := p.parseMultiplicative()
		x = &ast.BinaryExpr{Op: op, X: x, Y: y}
	}
	return x
}

// multiplicative → exponent (('*' | '/') exponent)*
func (p *Parser) parseMultiplicative() ast.Node {
	x := p.parseExponent()
	for (p.curToken.Type == token.ASTERISK || p.curToken.Type == token.SLASH) && !p.failed() {
		op := string(p.curToken.Type)
		p.next()
		y := p.parseExponent()
		x = &ast.BinaryExpr{Op: op, X: x, Y: y}
	}
	return x
}

// exponent → unary ('^' unary)*   -- right-associative
func (p *Parser) parseExponent() ast.Node {
	x := p.parseUnary()
	if p.curToken.Type == token.CARET && !p.failed() {
		p.next()
		y := p.parseExponent() // recurse instead of loop: binds right-to-left
		return &ast.BinaryExpr{Op: "^", X: x, Y: y}
	}
	return x
}

// unary → ('+' | '-')? primary
func (p *Parser) parseUnary() ast.Node {
	if p.curToken.Type == token.PLUS || p.curToken.Type == token.MINUS {
		op := string(p.curToken.Type)
		p.next()
		x := p.parseUnary()
		return &ast.UnaryExpr{Op: op, X: x}
	}
	return p.parsePrimary()
}

// primary → number | string | boolean | func_call | ref | '(' expr ')'
func (p *Parser) parsePrimary() ast.Node {
	if p.failed() {
		return nil
	}
	switch p.curToken.Type {
	case token.NUMBER:
		v, err := strconv.ParseFloat(p.curToken.Lit, 64)
		if err != nil {
			p.fail("invalid number literal %q", p.curToken.Lit)
			return nil
		}
		p.next()
		return &ast.NumberLit{Value: v}
	case token.STRING:
		lit := p.curToken.Lit
		p.next()
		return &ast.StringLit{Value: lit}
	case token.TRUE:
		p.next()
		return &ast.BoolLit{Value: true}
	case token.FALSE:
		p.next()
		return &ast.BoolLit{Value: false}
	case token.LPAREN:
		p.next()
		x := p.parseExpr()
		if p.curToken.Type != token.RPAREN {
			p.fail("expected ')'")
			return nil
		}
		p.next()
		return x
	case token.FUNC:
		return p.parseCall()
	case token.REF:
		return p.parseRef("")
	case token.IDENT:
		// Could be a sheet-qualified reference: IDENT '!' ref
		name := p.curToken.Lit
		p.next()
		if p.curToken.Type != token.BANG {
			p.fail("unexpected identifier %q", name)
			return nil
		}
		p.next()
		if p.curToken.Type != token.REF {
			p.fail("expected cell or range reference after '%s!'", name)
			return nil
		}
		return p.parseRef(name)
	default:
		p.fail("unexpected token %q", p.curToken.Lit)
		return nil
	}
}

// func_call → IDENT '(' (expr (',' expr)*)? ')'
func (p *Parser) parseCall() ast.Node {
	name := p.curToken.Lit
	p.next() // consume FUNC
	if p.curToken.Type != token.LPAREN {
		p.fail("expected '(' after function name %q", name)
		return nil
	}
	p.next() // consume '('

	var args []ast.Node
	if p.curToken.Type != token.RPAREN {
		args = append(args, p.parseExpr())
		for p.curToken.Type == token.COMMA && !p.failed() {
			p.next()
			args = append(args, p.parseExpr())
		}
	}
	if p.failed() {
		return nil
	}
	if p.curToken.Type != token.RPAREN {
		p.fail("expected ')' or ',' in arguments to %q", name)
		return nil
	}
	p.next()
	return &ast.Call{Name: name, Args: args}
}

// parseRef parses the current REF token (a cell or range reference) into a
// CellRef or RangeRef, optionally qualified by an already-consumed sheet
// name.
func (p *Parser) parseRef(sheet string) ast.Node {
	lit := p.curToken.Lit
	offset := p.curToken.Offset
	p.next()

	parts := strings.SplitN(lit, ":", 2)
	start, err := parseCellRef(parts[0], sheet)
	if err != nil {
		p.err = &ParseError{Message: err.Error(), Offset: offset}
		return nil
	}
	if len(parts) == 1 {
		return start
	}
	end, err := parseCellRef(parts[1], sheet)
	if err != nil {
		p.err = &ParseError{Message: err.Error(), Offset: offset}
		return nil
	}
	return &ast.RangeRef{Start: *start, End: *end}
}

// parseCellRef decodes one "$?[A-Z]+$?[0-9]+" fragment into a CellRef,
// recording per-axis absoluteness.
func parseCellRef(text, sheet string) (*ast.CellRef, error) {
	i := 0
	absCol := false
	if i < len(text) && text[i] == '$' {
		absCol = true
		i++
	}
	start := i
	for i < len(text) && isAlpha(text[i]) {
		i++
	}
	colText := text[start:i]

	absRow := false
	if i < len(text) && text[i] == '$' {
		absRow = true
		i++
	}
	rowText := text[i:]

	col, err := address.LabelToCol(colText)
	if err != nil {
		return nil, err
	}
	row1, err := strconv.Atoi(rowText)
	if err != nil {
		return nil, fmt.Errorf("parser: malformed cell reference %q", text)
	}
	addr := address.Addr{Row: row1 - 1, Col: col}
	if !address.InBounds(addr) {
		return nil, &address.OutOfBoundsError{Row: addr.Row, Col: addr.Col}
	}
	return &ast.CellRef{Addr: addr, AbsRow: absRow, AbsCol: absCol, Sheet: sheet, HasSheet: sheet != ""}, nil
}

func isAlpha(b byte) bool { return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' }
