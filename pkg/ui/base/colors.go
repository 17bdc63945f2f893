package base

import "github.com/charmbracelet/lipgloss"

// ColorPalette defines the colors of one theme
type ColorPalette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Muted     lipgloss.Color

	// cell kinds in the row grid
	Number lipgloss.Color
	Text   lipgloss.Color
	Link   lipgloss.Color
}

// DarkPalette is the default theme
var DarkPalette = ColorPalette{
	Primary:   lipgloss.Color("#7C3AED"), // Purple
	Secondary: lipgloss.Color("#06B6D4"), // Cyan
	Accent:    lipgloss.Color("#10B981"), // Emerald
	Warning:   lipgloss.Color("#F59E0B"), // Amber
	Error:     lipgloss.Color("#EF4444"), // Red
	Muted:     lipgloss.Color("#94A3B8"), // Slate
	Number:    lipgloss.Color("#BD93F9"),
	Text:      lipgloss.Color("#F1FA8C"),
	Link:      lipgloss.Color("#8BE9FD"),
}

var LightPalette = ColorPalette{
	Primary:   lipgloss.Color("#5A56E0"),
	Secondary: lipgloss.Color("#EE6FF8"),
	Accent:    lipgloss.Color("#02BA84"),
	Warning:   lipgloss.Color("#FF8C00"),
	Error:     lipgloss.Color("#FF5F56"),
	Muted:     lipgloss.Color("#9B9B9B"),
	Number:    lipgloss.Color("#6F42C1"),
	Text:      lipgloss.Color("#986801"),
	Link:      lipgloss.Color("#0184BC"),
}

func adaptive(pick func(ColorPalette) lipgloss.Color) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: string(pick(LightPalette)), Dark: string(pick(DarkPalette))}
}

// Adaptive colors follow the terminal background.
var (
	AdaptivePrimary   = adaptive(func(p ColorPalette) lipgloss.Color { return p.Primary })
	AdaptiveSecondary = adaptive(func(p ColorPalette) lipgloss.Color { return p.Secondary })
	AdaptiveAccent    = adaptive(func(p ColorPalette) lipgloss.Color { return p.Accent })
	AdaptiveWarning   = adaptive(func(p ColorPalette) lipgloss.Color { return p.Warning })
	AdaptiveError     = adaptive(func(p ColorPalette) lipgloss.Color { return p.Error })
	AdaptiveMuted     = adaptive(func(p ColorPalette) lipgloss.Color { return p.Muted })
	AdaptiveNumber    = adaptive(func(p ColorPalette) lipgloss.Color { return p.Number })
	AdaptiveText      = adaptive(func(p ColorPalette) lipgloss.Color { return p.Text })
	AdaptiveLink      = adaptive(func(p ColorPalette) lipgloss.Color { return p.Link })
)
