// Package markdown renders markdown text to ANSI-styled terminal output
// using goldmark for parsing and lipgloss for styling. It exists for tool
// descriptions, which servers commonly write in markdown.
package markdown

import "github.com/fwojciec/tether"

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width; code blocks are
// rendered at full width without reflow.
func Render(source string, width int, theme tether.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r := newRenderer(theme)
	return r.render([]byte(source), width)
}
