package expr

import (
	"fmt"
)

// pointAttrs are the identifiers that accept indexed access, e.g. y[3].
var pointAttrs = map[string]bool{
	"x": true, "y": true, "s": true, "a": true,
	"X": true, "Y": true, "S": true, "A": true,
}

// Parser is a recursive-descent parser over a token stream. The command
// interpreter drives it token by token and calls ParseExpr wherever the
// grammar expects a formula, so the cursor helpers are exported.
type Parser struct {
	toks []Token
	pos  int
}

// NewParser tokenizes src.
func NewParser(src string) (*Parser, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}

	return &Parser{toks: toks}, nil
}

// Parse parses src as a single expression consuming the whole input.
func Parse(src string) (Node, error) {
	p, err := NewParser(src)
	if err != nil {
		return nil, err
	}
	n, err := p.ParseExpr()
	if err != nil {
		return nil, err
	}
	if !p.AtEnd() {
		return nil, p.Unexpected("end of expression")
	}

	return n, nil
}

// MustParse is Parse for formulas known to be valid; it panics otherwise.
func MustParse(src string) Node {
	n, err := Parse(src)
	if err != nil {
		panic(err)
	}

	return n
}

// Peek returns the current token without consuming it.
func (p *Parser) Peek() Token { return p.toks[p.pos] }

// PeekAt returns the token k positions ahead (EOF past the end).
func (p *Parser) PeekAt(k int) Token {
	if p.pos+k >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}

	return p.toks[p.pos+k]
}

// Next consumes and returns the current token.
func (p *Parser) Next() Token {
	t := p.toks[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}

	return t
}

// Mark returns the cursor position for a later Reset.
func (p *Parser) Mark() int { return p.pos }

// Reset moves the cursor back to a position returned by Mark.
func (p *Parser) Reset(mark int) { p.pos = mark }

// AtEnd reports whether all tokens were consumed.
func (p *Parser) AtEnd() bool { return p.Peek().Kind == TokEOF }

// IsOp reports whether the current token is the operator op.
func (p *Parser) IsOp(op string) bool {
	t := p.Peek()

	return t.Kind == TokOp && t.Text == op
}

// IsWord reports whether the current token is the identifier w.
func (p *Parser) IsWord(w string) bool {
	t := p.Peek()

	return t.Kind == TokIdent && t.Text == w
}

// Accept consumes the operator op if present.
func (p *Parser) Accept(op string) bool {
	if p.IsOp(op) {
		p.pos++
		return true
	}

	return false
}

// Expect consumes the operator op or fails with a SyntaxError.
func (p *Parser) Expect(op string) error {
	if !p.Accept(op) {
		return p.Unexpected(fmt.Sprintf("expected %q", op))
	}

	return nil
}

// Unexpected builds a SyntaxError for the current token.
func (p *Parser) Unexpected(msg string) error {
	t := p.Peek()

	return &SyntaxError{Pos: t.Pos, Token: t.String(), Msg: msg}
}

// ParseExpr parses one expression starting at the cursor and stops at the
// first token that cannot continue it.
func (p *Parser) ParseExpr() (Node, error) {
	return p.parseTernary()
}

func (p *Parser) parseTernary() (Node, error) {
	c, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.Accept("?") {
		return c, nil
	}
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if err = p.Expect(":"); err != nil {
		return nil, err
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}

	return &Cond{If: c, Then: then, Else: els}, nil
}

func (p *Parser) parseOr() (Node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.IsWord("or") || p.IsOp("||") {
		p.Next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: "or", L: l, R: r}
	}

	return l, nil
}

func (p *Parser) parseAnd() (Node, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.IsWord("and") || p.IsOp("&&") {
		p.Next()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: "and", L: l, R: r}
	}

	return l, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.IsWord("not") || p.IsOp("!") {
		p.Next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return &Unary{Op: "not", X: x}, nil
	}

	return p.parseComparison()
}

var comparisonOps = map[string]bool{"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true}

func (p *Parser) parseComparison() (Node, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for t := p.Peek(); t.Kind == TokOp && comparisonOps[t.Text]; t = p.Peek() {
		p.Next()
		r, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: t.Text, L: l, R: r}
	}

	return l, nil
}

func (p *Parser) parseAdditive() (Node, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.IsOp("+") || p.IsOp("-") {
		op := p.Next().Text
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, L: l, R: r}
	}

	return l, nil
}

func (p *Parser) parseMultiplicative() (Node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.IsOp("*") || p.IsOp("/") {
		op := p.Next().Text
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, L: l, R: r}
	}

	return l, nil
}

// parseUnary handles prefix signs. A minus applied directly to a literal
// folds into the literal, so "-2" is Num{-2} while "-2^2" is -(2^2).
func (p *Parser) parseUnary() (Node, error) {
	switch {
	case p.IsOp("-"):
		p.Next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if n, ok := x.(*Num); ok {
			return &Num{V: -n.V}, nil
		}

		return &Unary{Op: "-", X: x}, nil
	case p.IsOp("+"):
		p.Next()
		return p.parseUnary()
	}

	return p.parsePower()
}

func (p *Parser) parsePower() (Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if !p.Accept("^") {
		return base, nil
	}
	exp, err := p.parseUnary() // right associative, signed exponent allowed
	if err != nil {
		return nil, err
	}

	return &Binary{Op: "^", L: base, R: exp}, nil
}

func (p *Parser) parsePrimary() (Node, error) {
	t := p.Peek()
	switch t.Kind {
	case TokNumber:
		p.Next()
		return &Num{V: t.Num}, nil
	case TokDollar:
		p.Next()
		return &VarRef{Name: t.Text}, nil
	case TokPercent:
		p.Next()
		if p.Accept("(") {
			arg, err := p.ParseExpr()
			if err != nil {
				return nil, err
			}
			if err = p.Expect(")"); err != nil {
				return nil, err
			}

			return &FuncRef{Name: t.Text, Arg: arg}, nil
		}
		if p.Accept(".") {
			pt := p.Next()
			if pt.Kind != TokIdent {
				return nil, &SyntaxError{Pos: pt.Pos, Token: pt.String(), Msg: "expected parameter name"}
			}

			return &FuncParam{Name: t.Text, Param: pt.Text}, nil
		}

		return nil, p.Unexpected(fmt.Sprintf("expected '(' or '.' after %%%s", t.Text))
	case TokIdent:
		if t.Text == "and" || t.Text == "or" || t.Text == "not" {
			return nil, p.Unexpected("expected operand")
		}
		p.Next()
		if aggregates[t.Text] && p.IsOp("(") {
			return p.parseAggregate(t)
		}
		if p.Accept("(") {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}

			return &Call{Name: t.Text, Args: args}, nil
		}
		if pointAttrs[t.Text] && p.Accept("[") {
			idx, err := p.ParseExpr()
			if err != nil {
				return nil, err
			}
			if err = p.Expect("]"); err != nil {
				return nil, err
			}

			return &Index{Name: t.Text, Idx: idx}, nil
		}

		return &Ident{Name: t.Text}, nil
	case TokOp:
		if t.Text == "(" {
			p.Next()
			n, err := p.ParseExpr()
			if err != nil {
				return nil, err
			}
			if err = p.Expect(")"); err != nil {
				return nil, err
			}

			return n, nil
		}
	}

	return nil, p.Unexpected("expected operand")
}

// parseAggregate parses "name(arg [if cond])" after the name.
func (p *Parser) parseAggregate(name Token) (Node, error) {
	p.Next() // (
	arg, err := p.ParseExpr()
	if err != nil {
		return nil, err
	}
	agg := &Aggregate{Name: name.Text, Arg: arg}
	if p.IsWord("if") {
		p.Next()
		if agg.Where, err = p.ParseExpr(); err != nil {
			return nil, err
		}
	}
	if err = p.Expect(")"); err != nil {
		return nil, err
	}

	return agg, nil
}

// parseArgs parses a comma separated argument list after '(' up to ')'.
func (p *Parser) parseArgs() ([]Node, error) {
	var args []Node
	if p.Accept(")") {
		return args, nil
	}
	for {
		a, err := p.ParseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.Accept(")") {
			return args, nil
		}
		if err = p.Expect(","); err != nil {
			return nil, err
		}
	}
}
