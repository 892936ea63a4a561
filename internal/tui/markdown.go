package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer converts finalized answers to styled terminal
// output. The renderer is cached and only recreated when the terminal
// width changes.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// newMarkdownRenderer creates a renderer for the given width. Returns
// a renderer that falls back to plain text when glamour fails to
// initialize.
func newMarkdownRenderer(width int) *markdownRenderer {
	if width <= 0 {
		width = 80
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &markdownRenderer{width: width}
	}
	return &markdownRenderer{renderer: r, width: width}
}

// UpdateWidth recreates the renderer if the width actually changed.
func (m *markdownRenderer) UpdateWidth(width int) {
	if m == nil || width <= 0 || m.width == width {
		return
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return
	}
	m.renderer = r
	m.width = width
}

// Render converts markdown to terminal output, returning the input
// unchanged when rendering fails.
func (m *markdownRenderer) Render(markdown string) string {
	if m == nil || m.renderer == nil {
		return markdown
	}

	rendered, err := m.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimSuffix(rendered, "\n")
}
