package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"colstore/pkg/ui/base"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(base.AdaptivePrimary).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(base.AdaptiveSecondary).
			Width(14)

	mutedStyle = lipgloss.NewStyle().
			Foreground(base.AdaptiveMuted)

	okStyle = lipgloss.NewStyle().
		Foreground(base.AdaptiveAccent).
		Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(base.AdaptiveError).
			Bold(true)
)

func printTitle(w io.Writer, title string) {
	fmt.Fprintln(w, titleStyle.Render(title))
}

func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label), value)
}
