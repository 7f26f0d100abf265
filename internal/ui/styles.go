package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - connected, success
	ErrorColor   = lipgloss.Color("#FF5555") // Red - faults, errors
	WarningColor = lipgloss.Color("#FFA500") // Orange - access point, pending
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(18)

	ValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	SuccessTitleStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	ErrorTitleStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)
)

// modeStyles colours each connection mode by name.
var modeStyles = map[string]lipgloss.Style{
	"idle":                  lipgloss.NewStyle().Foreground(MutedColor).Bold(true),
	"connecting":            lipgloss.NewStyle().Foreground(WarningColor).Bold(true),
	"station":               lipgloss.NewStyle().Foreground(SuccessColor).Bold(true),
	"access_point":          lipgloss.NewStyle().Foreground(WarningColor).Bold(true),
	"access_point_draining": lipgloss.NewStyle().Foreground(WarningColor),
}

// ModeStyle returns the style for a mode name.
func ModeStyle(mode string) lipgloss.Style {
	if s, ok := modeStyles[mode]; ok {
		return s
	}
	return ValueStyle
}

// Markers
const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
)

// GetTerminalWidth returns the current terminal width, with fallback
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// BoxStyle returns a bordered box in the given colour.
func BoxStyle(width int, color lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Width(width-2).
		Padding(0, 1)
}

// Divider returns a horizontal rule.
func Divider(width int) string {
	if width < 10 {
		width = 10
	}
	return lipgloss.NewStyle().Foreground(PrimaryColor).Render(strings.Repeat("─", width))
}

// KeyValue renders an aligned "key value" line.
func KeyValue(key, value string) string {
	return KeyStyle.Render(key) + ValueStyle.Render(value)
}
