package format

import "github.com/charmbracelet/lipgloss"

// Shared terminal palette.
var (
	ColorBrand   = lipgloss.Color("99")  // Accent purple
	ColorMuted   = lipgloss.Color("241") // Labels, punctuation
	ColorBright  = lipgloss.Color("255") // Emphasis
	ColorSuccess = lipgloss.Color("82")  // Green
	ColorWarning = lipgloss.Color("220") // Yellow
	ColorDanger  = lipgloss.Color("196") // Red
	ColorInfo    = lipgloss.Color("75")  // Cyan/blue
)

// Message styles used across the CLI.
var (
	// TextMuted for labels and static text
	TextMuted = lipgloss.NewStyle().Foreground(ColorMuted)

	// TextBright for dynamic values
	TextBright = lipgloss.NewStyle().Foreground(ColorBright)

	// TextAccent for daemon names and action keys
	TextAccent = lipgloss.NewStyle().Foreground(ColorBrand).Bold(true)

	// TextSuccess for success messages
	TextSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)

	// TextWarning for warnings
	TextWarning = lipgloss.NewStyle().Foreground(ColorWarning).Bold(true)

	// TextDanger for errors
	TextDanger = lipgloss.NewStyle().Foreground(ColorDanger).Bold(true)
)
