package parser

import (
	"strings"
	"unicode"
)

// Lexer splits a filter expression into tokens. Keywords are matched
// without regard to case; column names and strings keep theirs.
type Lexer struct {
	input  string
	pos    int
	length int
}

func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		pos:    0,
		length: len(input),
	}
}

func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.pos >= l.length {
		return createToken(EOF, "", l.pos)
	}

	start := l.pos
	ch := l.input[l.pos]

	switch {
	case ch == '(':
		l.pos++
		return createToken(LPAREN, "(", start)
	case ch == ')':
		l.pos++
		return createToken(RPAREN, ")", start)
	case ch == '=' || ch == '<' || ch == '>' || ch == '!':
		return l.readOperator(start)
	case ch == '\'' || ch == '"':
		return l.readString(start)
	case ch == '-' && l.pos+1 < l.length && isDigit(l.input[l.pos+1]):
		return l.readNumber(start)
	case isDigit(ch):
		return l.readNumber(start)
	case unicode.IsLetter(rune(ch)) || ch == '_':
		return l.readIdentifier(start)
	default:
		l.pos++
		return createToken(INVALID, string(ch), start)
	}
}

// Tokens returns every token of the input, ending with EOF.
func (l *Lexer) Tokens() []Token {
	var out []Token
	for {
		tok := l.NextToken()
		out = append(out, tok)
		if tok.Type == EOF {
			return out
		}
	}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) skipWhitespace() {
	for l.pos < l.length && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *Lexer) readOperator(start int) Token {
	for l.pos < l.length && strings.ContainsRune("=<>!", rune(l.input[l.pos])) {
		l.pos++
	}
	op := l.input[start:l.pos]
	switch op {
	case "=", "==", "!=", "<>", "<", "<=", ">", ">=":
		return createToken(OPERATOR, op, start)
	}
	return createToken(INVALID, op, start)
}

// readString reads a quoted string. A doubled quote stands for itself; an
// unterminated string is INVALID.
func (l *Lexer) readString(start int) Token {
	quote := l.input[l.pos]
	l.pos++

	var sb strings.Builder
	for l.pos < l.length {
		ch := l.input[l.pos]
		l.pos++
		if ch != quote {
			sb.WriteByte(ch)
			continue
		}
		if l.pos < l.length && l.input[l.pos] == quote {
			sb.WriteByte(quote)
			l.pos++
			continue
		}
		return createToken(STRING, sb.String(), start)
	}
	return createToken(INVALID, l.input[start:], start)
}

func (l *Lexer) readNumber(start int) Token {
	typ := INT
	if l.input[l.pos] == '-' {
		l.pos++
	}
	for l.pos < l.length && (isDigit(l.input[l.pos]) || l.input[l.pos] == '.') {
		if l.input[l.pos] == '.' {
			if typ == FLOAT {
				break
			}
			typ = FLOAT
		}
		l.pos++
	}
	return createToken(typ, l.input[start:l.pos], start)
}

func createToken(t TokenType, value string, start int) Token {
	return Token{
		Type:     t,
		Value:    value,
		Position: start,
	}
}

func (l *Lexer) readIdentifier(start int) Token {
	for l.pos < l.length && (unicode.IsLetter(rune(l.input[l.pos])) || isDigit(l.input[l.pos]) || l.input[l.pos] == '_') {
		l.pos++
	}
	value := l.input[start:l.pos]
	if kw, ok := keywords[strings.ToUpper(value)]; ok {
		return createToken(kw, value, start)
	}
	return createToken(IDENT, value, start)
}
