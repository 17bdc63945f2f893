package ui

import (
	"strings"

	"colstore/pkg/parser"
	"colstore/pkg/ui/base"

	"github.com/charmbracelet/lipgloss"
)

// FilterHighlighter colors a filter expression token by token. Text
// between tokens is kept as typed.
type FilterHighlighter struct {
	keywordStyle  lipgloss.Style
	columnStyle   lipgloss.Style
	stringStyle   lipgloss.Style
	numberStyle   lipgloss.Style
	operatorStyle lipgloss.Style
	invalidStyle  lipgloss.Style
}

func NewFilterHighlighter() *FilterHighlighter {
	return &FilterHighlighter{
		keywordStyle: lipgloss.NewStyle().
			Foreground(base.AdaptivePrimary).
			Bold(true),
		columnStyle: lipgloss.NewStyle().
			Foreground(base.AdaptiveLink),
		stringStyle: lipgloss.NewStyle().
			Foreground(base.AdaptiveText),
		numberStyle: lipgloss.NewStyle().
			Foreground(base.AdaptiveNumber),
		operatorStyle: lipgloss.NewStyle().
			Foreground(base.AdaptiveWarning),
		invalidStyle: lipgloss.NewStyle().
			Foreground(base.AdaptiveError).
			Underline(true),
	}
}

func (h *FilterHighlighter) Highlight(expr string) string {
	var sb strings.Builder
	pos := 0
	lx := parser.NewLexer(expr)
	for {
		tok := lx.NextToken()
		if tok.Type == parser.EOF {
			break
		}
		sb.WriteString(expr[pos:tok.Position])
		end := h.tokenEnd(expr, tok)
		sb.WriteString(h.styleFor(tok).Render(expr[tok.Position:end]))
		pos = end
	}
	sb.WriteString(expr[pos:])
	return sb.String()
}

// tokenEnd finds where tok ends in expr. Strings lose their quoting in
// the token value, so their extent is found by scanning.
func (h *FilterHighlighter) tokenEnd(expr string, tok parser.Token) int {
	if tok.Type != parser.STRING {
		return min(tok.Position+len(tok.Value), len(expr))
	}
	quote := expr[tok.Position]
	i := tok.Position + 1
	for i < len(expr) {
		if expr[i] == quote {
			if i+1 < len(expr) && expr[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(expr)
}

func (h *FilterHighlighter) styleFor(tok parser.Token) lipgloss.Style {
	switch {
	case tok.Type == parser.INVALID:
		return h.invalidStyle
	case tok.Type == parser.IDENT:
		return h.columnStyle
	case tok.Type == parser.STRING:
		return h.stringStyle
	case tok.Type == parser.INT || tok.Type == parser.FLOAT:
		return h.numberStyle
	case tok.Type == parser.OPERATOR:
		return h.operatorStyle
	case tok.Type.IsKeyword():
		return h.keywordStyle
	}
	return lipgloss.NewStyle()
}
