package base

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PadString pads a string to the specified display width with spaces
func PadString(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// TruncateString truncates a string to maxWidth runes with ellipsis
func TruncateString(s string, maxWidth int) string {
	r := []rune(s)
	if len(r) <= maxWidth {
		return s
	}
	if maxWidth < 3 {
		return string(r[:maxWidth])
	}
	return string(r[:maxWidth-3]) + "..."
}

// ColumnWidth returns the width needed to show title and every cell of
// column col, clamped to [minWidth, maxWidth].
func ColumnWidth(title string, rows [][]string, col, minWidth, maxWidth int) int {
	width := lipgloss.Width(title) + 2
	for _, row := range rows {
		if col < len(row) {
			width = max(width, lipgloss.Width(row[col])+2)
		}
	}
	return min(max(width, minWidth), maxWidth)
}
