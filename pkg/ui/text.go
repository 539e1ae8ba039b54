package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// TruncateToWidth truncates text to width display cells with an ellipsis.
func TruncateToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	if width <= 3 {
		return TrimToWidth(text, width)
	}
	return TrimToWidth(text, width-3) + "..."
}

// TrimToWidth trims text to width display cells without an ellipsis.
func TrimToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	var sb strings.Builder
	currentWidth := 0
	for _, r := range text {
		runeWidth := runewidth.RuneWidth(r)
		if currentWidth+runeWidth > width {
			break
		}
		sb.WriteRune(r)
		currentWidth += runeWidth
	}
	return sb.String()
}

// Preview flattens text to one line and truncates it to width.
func Preview(text string, width int) string {
	return TruncateToWidth(strings.Join(strings.Fields(text), " "), width)
}
