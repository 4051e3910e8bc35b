package display

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/smartplant/internal/alert"
)

// Palette shared by the panel and the interactive monitor.
var (
	ColorTitleFg = lipgloss.Color("51")
	ColorBorder  = lipgloss.Color("62")
	ColorLabel   = lipgloss.Color("252")
	ColorDim     = lipgloss.Color("240")
	ColorOk      = lipgloss.Color("78")
	ColorHigh    = lipgloss.Color("208")
	ColorCrit    = lipgloss.Color("196")
)

// StatusColor returns the color for a status line: green when ok, orange
// for a single condition, red for the combined one, dim while waiting.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case StatusPhrase(alert.Normal):
		return ColorOk
	case "too hot & dry":
		return ColorCrit
	case "temp too high", "humidity low":
		return ColorHigh
	default:
		return ColorDim
	}
}

// Truncate cuts s to w cells, marking the cut with an ellipsis.
func Truncate(s string, w int) string {
	r := []rune(s)
	if len(r) <= w {
		return s
	}
	if w <= 3 {
		return string(r[:w])
	}
	return string(r[:w-1]) + "\u2026"
}
