package parser

type TokenType int

const (
	EOF TokenType = iota
	INVALID

	IDENT
	INT
	FLOAT
	STRING

	OPERATOR
	LPAREN
	RPAREN

	AND
	OR
	NOT
	IS
	NULL
	TRUE
	FALSE
	BETWEEN
	CONTAINS
	BEGINSWITH
	ENDSWITH
	LIKE
	NOCASE
)

var keywords = map[string]TokenType{
	"AND":        AND,
	"OR":         OR,
	"NOT":        NOT,
	"IS":         IS,
	"NULL":       NULL,
	"TRUE":       TRUE,
	"FALSE":      FALSE,
	"BETWEEN":    BETWEEN,
	"CONTAINS":   CONTAINS,
	"BEGINSWITH": BEGINSWITH,
	"ENDSWITH":   ENDSWITH,
	"LIKE":       LIKE,
	"NOCASE":     NOCASE,
}

func (t TokenType) String() string {
	switch t {
	case EOF:
		return "end of input"
	case INVALID:
		return "invalid character"
	case IDENT:
		return "column name"
	case INT:
		return "integer"
	case FLOAT:
		return "number"
	case STRING:
		return "string"
	case OPERATOR:
		return "operator"
	case LPAREN:
		return "'('"
	case RPAREN:
		return "')'"
	}
	for name, typ := range keywords {
		if typ == t {
			return name
		}
	}
	return "unknown"
}

// IsKeyword reports whether t is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t >= AND
}

type Token struct {
	Type     TokenType
	Value    string
	Position int
}
