// Package styles provides the shared colors and lipgloss styles for console
// output.
package styles

import (
	"charm.land/lipgloss/v2"
)

// Color palette - ANSI 256 colors used throughout the application
var (
	// Primary accent color (purple)
	ColorAccent = lipgloss.Color("141")

	ColorTextMuted = lipgloss.Color("245")
	ColorError     = lipgloss.Color("196")

	// Speaker colors
	ColorUser = lipgloss.Color("39")
	ColorBot  = lipgloss.Color("219")
)

// Text styles
var (
	// TitleStyle for banners and section titles
	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	// TextMutedStyle for secondary/helper text
	TextMutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Italic(true)
)

// Conversation styles
var (
	UserPromptStyle = lipgloss.NewStyle().
			Foreground(ColorUser).
			Bold(true)

	BotPromptStyle = lipgloss.NewStyle().
			Foreground(ColorBot).
			Bold(true)
)

// Feedback styles
var (
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)
)
