package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/database"
	dberr "colstore/pkg/error"
	"colstore/pkg/types"
)

func TestLexer(t *testing.T) {
	toks := NewLexer(`age >= -3 and Name contains 'O''Brien' nocase or x <> 1.5`).Tokens()
	var got []TokenType
	for _, tok := range toks {
		got = append(got, tok.Type)
	}
	assert.Equal(t, []TokenType{
		IDENT, OPERATOR, INT, AND, IDENT, CONTAINS, STRING, NOCASE, OR, IDENT, OPERATOR, FLOAT, EOF,
	}, got)
	assert.Equal(t, "-3", toks[2].Value)
	assert.Equal(t, "Name", toks[4].Value)
	assert.Equal(t, "O'Brien", toks[6].Value)
	assert.Equal(t, 4, toks[1].Position)
}

func TestLexerInvalid(t *testing.T) {
	tests := []struct {
		input string
		value string
	}{
		{`name = 'open`, `'open`},
		{`a => 1`, `=>`},
		{`a ~ 1`, `~`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var invalid *Token
			for _, tok := range NewLexer(tt.input).Tokens() {
				if tok.Type == INVALID {
					invalid = &tok
					break
				}
			}
			require.NotNil(t, invalid)
			assert.Equal(t, tt.value, invalid.Value)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`age > 30`, `age > 30`},
		{`age between 1 and 5`, `age BETWEEN 1 AND 5`},
		{`nick is null`, `nick IS NULL`},
		{`nick IS NOT NULL`, `nick IS NOT NULL`},
		{`nick = null`, `nick IS NULL`},
		{`name beginswith "al" NOCASE`, `name BEGINSWITH "al" NOCASE`},
		{`a = 1 and b = 2 or c = 3`, `((a == 1 AND b == 2) OR c == 3)`},
		{`a = 1 and (b = 2 or c = 3)`, `(a == 1 AND (b == 2 OR c == 3))`},
		{`not (a = 1 or b = 2)`, `NOT (a == 1 OR b == 2)`},
		{`flag != true`, `flag != true`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())
		})
	}
}

func TestParseEmpty(t *testing.T) {
	e, err := Parse("   ")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		`age >`,
		`age 30`,
		`(age > 1`,
		`age > 1)`,
		`age between 1 or 2`,
		`name contains 3`,
		`age < null`,
		`age is 3`,
		`and a = 1`,
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			assert.ErrorIs(t, err, dberr.ErrInvalidQuery)
		})
	}
}

func peopleTable(t *testing.T) *database.Table {
	t.Helper()
	g := database.New()
	t.Cleanup(func() { g.Close() })
	tbl, err := g.AddTable("people")
	require.NoError(t, err)
	for _, c := range []struct {
		typ      types.DataType
		name     string
		nullable bool
	}{
		{types.Int, "age", false},
		{types.String, "name", false},
		{types.String, "nick", true},
		{types.Bool, "active", false},
		{types.Double, "score", false},
		{types.Timestamp, "born", false},
	} {
		_, err := tbl.AddColumn(c.typ, c.name, c.nullable)
		require.NoError(t, err)
	}
	rows := []struct {
		age    int64
		name   string
		nick   string
		active bool
		score  float64
		born   int64
	}{
		{20, "Alice", "al", true, 1.5, 100},
		{35, "bob", "", false, 7.25, 200},
		{42, "Carol", "cc", true, 3.0, 300},
		{17, "dave", "", false, 9.0, 400},
	}
	_, err = tbl.AddEmptyRows(len(rows))
	require.NoError(t, err)
	for i, r := range rows {
		require.NoError(t, tbl.SetInt(0, i, r.age))
		require.NoError(t, tbl.SetString(1, i, r.name))
		if r.nick != "" {
			require.NoError(t, tbl.SetString(2, i, r.nick))
		}
		require.NoError(t, tbl.SetBool(3, i, r.active))
		require.NoError(t, tbl.SetDouble(4, i, r.score))
		require.NoError(t, tbl.SetTimestamp(5, i, types.NewTimestamp(r.born, 0)))
	}
	return tbl
}

func TestFilter(t *testing.T) {
	tbl := peopleTable(t)

	tests := []struct {
		input string
		want  []int
	}{
		{``, []int{0, 1, 2, 3}},
		{`age >= 20`, []int{0, 1, 2}},
		{`age between 18 and 40`, []int{0, 1}},
		{`name = 'bob'`, []int{1}},
		{`name beginswith 'c' nocase`, []int{2}},
		{`name beginswith 'c'`, nil},
		{`nick is null`, []int{1, 3}},
		{`nick is not null and age > 30`, []int{2}},
		{`active = true or score > 8`, []int{0, 2, 3}},
		{`not (active = true or score > 8)`, []int{1}},
		{`active != true`, []int{1, 3}},
		{`score between 1 and 3.5`, []int{0, 2}},
		{`born < 250`, []int{0, 1}},
		{`name like '?o*'`, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q, err := Filter(tbl, tt.input)
			require.NoError(t, err)
			view, err := q.FindAll(0, -1, -1)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, view.Rows())
				return
			}
			assert.Equal(t, tt.want, view.Rows())
		})
	}
}

func TestFilterErrors(t *testing.T) {
	tbl := peopleTable(t)

	tests := []string{
		`height > 3`,
		`age > 'x'`,
		`age > 1.5`,
		`age contains 'x'`,
		`active > true`,
		`name > 3`,
		`born between 1.5 and 2`,
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Filter(tbl, input)
			assert.ErrorIs(t, err, dberr.ErrInvalidQuery)
		})
	}
}
