package ui

import (
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
)

// Renderer formats answers for the terminal.
type Renderer struct {
	width    int
	markdown *glamour.TermRenderer
}

// NewRenderer wraps answers to width columns. With markdown enabled answers
// are rendered through glamour; if the renderer cannot be built the plain
// wrapper is used instead.
func NewRenderer(width int, markdown bool) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	r := &Renderer{width: width}
	if !markdown {
		return r
	}

	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		slog.Warn("markdown_renderer_unavailable", "error", err)
		return r
	}
	r.markdown = tr
	return r
}

// Render returns answer ready to print.
func (r *Renderer) Render(answer string) string {
	if r.markdown != nil {
		out, err := r.markdown.Render(answer)
		if err == nil {
			return strings.Trim(out, "\n")
		}
		slog.Warn("markdown_render_failed", "error", err)
	}
	return ansi.Wrap(answer, r.width, "")
}
