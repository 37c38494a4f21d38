package ui

import "github.com/charmbracelet/lipgloss"

// Palette.
const (
	ColorAccent = "39"  // blue
	ColorDim    = "242" // gray
	ColorOK     = "42"  // green
	ColorWarn   = "214" // orange
	ColorErr    = "203" // red
)

// Styles groups the lipgloss styles used by the renderers.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDim)),
		Value:   lipgloss.NewStyle().Bold(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorOK)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarn)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorErr)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDim)),
	}
}

// GetStyles returns plain styles when noColor is set.
func GetStyles(noColor bool) Styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return Styles{plain, plain, plain, plain, plain, plain, plain}
	}
	return DefaultStyles()
}
