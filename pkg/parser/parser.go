// Package parser reads filter expressions such as
//
//	age >= 18 and (name beginswith 'A' nocase or nick is null)
//
// and turns them into queries on a table. It serves the command line tool
// and the table browser.
package parser

import (
	"fmt"

	dberr "colstore/pkg/error"
	"colstore/pkg/types"
)

// Expr is a parsed filter expression.
type Expr interface {
	fmt.Stringer
	isExpr()
}

// OrExpr matches rows matching any alternative.
type OrExpr struct{ Alts []Expr }

// AndExpr matches rows matching every term.
type AndExpr struct{ Terms []Expr }

type NotExpr struct{ Inner Expr }

// Condition compares one column with literals. Null tests have no
// literals; Between has two.
type Condition struct {
	Column        string
	Pred          types.Predicate
	Values        []Token
	Null          bool
	Between       bool
	CaseSensitive bool
	Position      int
}

func (*OrExpr) isExpr()    {}
func (*AndExpr) isExpr()   {}
func (*NotExpr) isExpr()   {}
func (*Condition) isExpr() {}

func (e *OrExpr) String() string  { return joinExprs(e.Alts, " OR ") }
func (e *AndExpr) String() string { return joinExprs(e.Terms, " AND ") }
func (e *NotExpr) String() string { return "NOT " + e.Inner.String() }

func (c *Condition) String() string {
	switch {
	case c.Null && c.Pred == types.Equals:
		return c.Column + " IS NULL"
	case c.Null:
		return c.Column + " IS NOT NULL"
	case c.Between:
		return fmt.Sprintf("%s BETWEEN %s AND %s", c.Column, c.Values[0].Value, c.Values[1].Value)
	}
	s := fmt.Sprintf("%s %s %s", c.Column, c.Pred, literal(c.Values[0]))
	if !c.CaseSensitive {
		s += " NOCASE"
	}
	return s
}

func literal(t Token) string {
	if t.Type == STRING {
		return fmt.Sprintf("%q", t.Value)
	}
	return t.Value
}

func joinExprs(es []Expr, sep string) string {
	s := "("
	for i, e := range es {
		if i > 0 {
			s += sep
		}
		s += e.String()
	}
	return s + ")"
}

type Parser struct {
	tokens []Token
	pos    int
}

// Parse reads a filter expression. An empty expression gives a nil Expr,
// which matches every row.
func Parse(input string) (Expr, error) {
	p := &Parser{tokens: NewLexer(input).Tokens()}
	if p.peek().Type == EOF {
		return nil, nil
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != EOF {
		return nil, p.unexpected(tok, "end of input")
	}
	return e, nil
}

func (p *Parser) peek() Token { return p.tokens[p.pos] }

func (p *Parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) accept(t TokenType) bool {
	if p.peek().Type == t {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) unexpected(tok Token, want string) error {
	got := tok.Type.String()
	if tok.Value != "" {
		got = fmt.Sprintf("%q", tok.Value)
	}
	return syntaxError(tok.Position, "expected %s, got %s", want, got)
}

func syntaxError(pos int, format string, args ...any) error {
	return dberr.From(dberr.ErrInvalidQuery).
		WithDetail("at %d: %s", pos, fmt.Sprintf(format, args...)).In("Parse", "Parser")
}

func (p *Parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	alts := []Expr{first}
	for p.accept(OR) {
		e, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		alts = append(alts, e)
	}
	if len(alts) == 1 {
		return first, nil
	}
	return &OrExpr{Alts: alts}, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := []Expr{first}
	for p.accept(AND) {
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return &AndExpr{Terms: terms}, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.accept(NOT) {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Inner: inner}, nil
	}
	if p.accept(LPAREN) {
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if tok := p.next(); tok.Type != RPAREN {
			return nil, p.unexpected(tok, "')'")
		}
		return e, nil
	}
	return p.parseCondition()
}

var operators = map[string]types.Predicate{
	"=":  types.Equals,
	"==": types.Equals,
	"!=": types.NotEqual,
	"<>": types.NotEqual,
	"<":  types.LessThan,
	"<=": types.LessThanOrEqual,
	">":  types.GreaterThan,
	">=": types.GreaterThanOrEqual,
}

var stringOperators = map[TokenType]types.Predicate{
	CONTAINS:   types.Contains,
	BEGINSWITH: types.BeginsWith,
	ENDSWITH:   types.EndsWith,
	LIKE:       types.Like,
}

func isLiteral(t TokenType) bool {
	switch t {
	case INT, FLOAT, STRING, TRUE, FALSE:
		return true
	}
	return false
}

func (p *Parser) parseCondition() (Expr, error) {
	col := p.next()
	if col.Type != IDENT {
		return nil, p.unexpected(col, "column name")
	}
	c := &Condition{Column: col.Value, CaseSensitive: true, Position: col.Position}

	op := p.next()
	switch {
	case op.Type == OPERATOR:
		c.Pred = operators[op.Value]
		if p.accept(NULL) {
			if c.Pred != types.Equals && c.Pred != types.NotEqual {
				return nil, syntaxError(op.Position, "%s null is not defined", c.Pred)
			}
			c.Null = true
			return c, nil
		}
		v := p.next()
		if !isLiteral(v.Type) {
			return nil, p.unexpected(v, "value")
		}
		c.Values = []Token{v}
		if v.Type == STRING {
			c.CaseSensitive = !p.accept(NOCASE)
		}

	case op.Type == IS:
		c.Null, c.Pred = true, types.Equals
		if p.accept(NOT) {
			c.Pred = types.NotEqual
		}
		if tok := p.next(); tok.Type != NULL {
			return nil, p.unexpected(tok, "NULL")
		}

	case op.Type == BETWEEN:
		lo := p.next()
		if lo.Type != INT && lo.Type != FLOAT {
			return nil, p.unexpected(lo, "number")
		}
		if tok := p.next(); tok.Type != AND {
			return nil, p.unexpected(tok, "AND")
		}
		hi := p.next()
		if hi.Type != INT && hi.Type != FLOAT {
			return nil, p.unexpected(hi, "number")
		}
		c.Between, c.Values = true, []Token{lo, hi}

	default:
		pred, ok := stringOperators[op.Type]
		if !ok {
			return nil, p.unexpected(op, "operator")
		}
		v := p.next()
		if v.Type != STRING {
			return nil, p.unexpected(v, "string")
		}
		c.Pred, c.Values = pred, []Token{v}
		c.CaseSensitive = !p.accept(NOCASE)
	}
	return c, nil
}
