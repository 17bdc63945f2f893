package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/parser"
)

func TestHighlightKeepsText(t *testing.T) {
	h := NewFilterHighlighter()
	for _, expr := range []string{
		"",
		"age >= 18",
		"  name contains 'O''Brien' nocase  ",
		`(a = 1 or b != "x") and not c is null`,
		"a ~ 1",
		"name = 'open",
	} {
		assert.Equal(t, expr, h.Highlight(expr))
	}
}

func TestTokenEnd(t *testing.T) {
	h := NewFilterHighlighter()
	expr := `x = 'it''s' and y`
	toks := parser.NewLexer(expr).Tokens()
	require.Equal(t, parser.STRING, toks[2].Type)
	assert.Equal(t, 11, h.tokenEnd(expr, toks[2]))
	assert.Equal(t, 1, h.tokenEnd(expr, toks[0]))
}
