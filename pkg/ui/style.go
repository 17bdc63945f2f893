package ui

import (
	"colstore/pkg/ui/base"

	"github.com/charmbracelet/lipgloss"
)

var (
	primaryColor   = base.AdaptivePrimary
	secondaryColor = base.AdaptiveSecondary
	accentColor    = base.AdaptiveAccent
	warningColor   = base.AdaptiveWarning
	errorColor     = base.AdaptiveError
	mutedColor     = base.AdaptiveMuted

	bgColor = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#0F172A"}
	bgPanel = lipgloss.AdaptiveColor{Light: "#F1F5F9", Dark: "#1E293B"}
	fgColor = lipgloss.AdaptiveColor{Light: "#1E1E2E", Dark: "#F8FAFC"}
)

var (
	appStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 2)

	pathBadgeStyle = lipgloss.NewStyle().
			Background(secondaryColor).
			Foreground(bgColor).
			Bold(true).
			Padding(0, 1)

	versionStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	pendingStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	followStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true).
			MarginTop(1)

	typeStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	filterStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(bgPanel).
			Foreground(fgColor).
			Padding(0, 1).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2).
			MarginTop(1)
)
