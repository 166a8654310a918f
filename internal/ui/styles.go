// Package ui provides consistent styling for the loom CLI output.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary = lipgloss.Color("39")  // Bright blue
	ColorSuccess = lipgloss.Color("82")  // Green
	ColorWarning = lipgloss.Color("214") // Orange
	ColorError   = lipgloss.Color("196") // Red
	ColorInfo    = lipgloss.Color("86")  // Cyan

	ColorText   = lipgloss.Color("252") // Light gray
	ColorSubtle = lipgloss.Color("241") // Medium gray
	ColorMuted  = lipgloss.Color("238") // Dark gray
)

var (
	TextStyle   = lipgloss.NewStyle().Foreground(ColorText)
	SubtleStyle = lipgloss.NewStyle().Foreground(ColorSubtle)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SubheaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText)

	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorError)
	InfoStyle    = lipgloss.NewStyle().Foreground(ColorInfo)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(1, 2)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorPrimary)

	TableRowStyle = lipgloss.NewStyle().Foreground(ColorText)
)

// Status indicators
var (
	ActiveIndicator   = lipgloss.NewStyle().Foreground(ColorSuccess).Render("●")
	InactiveIndicator = lipgloss.NewStyle().Foreground(ColorError).Render("○")
)

// FormatStatus renders an indicator dot followed by the status text.
func FormatStatus(active bool, status string) string {
	indicator := InactiveIndicator
	if active {
		indicator = ActiveIndicator
	}
	return indicator + " " + status
}

// FormatAppHeader renders the command header with an optional detail line.
func FormatAppHeader(title, detail string) string {
	header := HeaderStyle.Render(title)
	if detail != "" {
		header += " " + SubtleStyle.Render(detail)
	}
	return header + "\n" + CreateSeparator(50, "─")
}

// CreateSeparator creates a horizontal line separator.
func CreateSeparator(width int, char string) string {
	if width <= 0 {
		width = 50
	}
	if char == "" {
		char = "─"
	}
	return lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Render(strings.Repeat(char, width))
}
