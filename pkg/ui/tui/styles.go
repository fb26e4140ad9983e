package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// Palette
	accent     = lipgloss.Color("#C13584")
	accentSoft = lipgloss.Color("#F77737")
	okGreen    = lipgloss.Color("#39D353")
	warnOrange = lipgloss.Color("#FF8C00")
	errRed     = lipgloss.Color("#FF4545")
	dimWhite   = lipgloss.Color("#B0B0B0")
	darkBg     = lipgloss.Color("#16161E")

	headerStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Background(accent).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(accentSoft).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	successStyle = lipgloss.NewStyle().
			Foreground(okGreen).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warnOrange).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errRed).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			PaddingLeft(1)
)

// levelColor returns the color used for a log level
func levelColor(level string) lipgloss.Color {
	switch level {
	case levelError:
		return errRed
	case levelWarn:
		return warnOrange
	case levelSuccess:
		return okGreen
	default:
		return accentSoft
	}
}
