package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/lipgloss"

	"github.com/fwojciec/tether"
	"github.com/fwojciec/tether/markdown"
)

// outputWidth is the wrap width for rendered markdown.
const outputWidth = 80

// printer formats tool listings and results for the terminal.
type printer struct {
	out   io.Writer
	theme tether.Theme
	tool  lipgloss.Style
	err   lipgloss.Style
	muted lipgloss.Style
}

func newPrinter(out io.Writer, theme tether.Theme) *printer {
	color := func(i int) lipgloss.TerminalColor { return lipgloss.Color(strconv.Itoa(i)) }
	return &printer{
		out:   out,
		theme: theme,
		tool:  lipgloss.NewStyle().Foreground(color(theme.Tool)).Bold(true),
		err:   lipgloss.NewStyle().Foreground(color(theme.Error)).Bold(true),
		muted: lipgloss.NewStyle().Foreground(color(theme.Muted)).Faint(true),
	}
}

// printTools lists the tools whose names match the glob pattern, with their
// descriptions rendered as markdown.
func (p *printer) printTools(tools []tether.Tool, glob string) error {
	matched := 0
	for _, t := range tools {
		ok, err := doublestar.Match(glob, t.Name)
		if err != nil {
			return fmt.Errorf("bad -tools pattern %q: %w", glob, err)
		}
		if !ok {
			continue
		}
		matched++

		fmt.Fprintln(p.out, p.tool.Render(t.Name))
		if t.Description != "" {
			fmt.Fprintln(p.out, indent(markdown.Render(t.Description, outputWidth-2, p.theme), "  "))
		}
		fmt.Fprintln(p.out)
	}
	fmt.Fprintln(p.out, p.muted.Render(fmt.Sprintf("%d of %d tools", matched, len(tools))))
	return nil
}

// printResult writes a tool invocation's content blocks. A tool-reported
// error sets the exit status via the returned error.
func (p *printer) printResult(name string, result *tether.ToolResult) error {
	for _, block := range result.Content {
		switch b := block.(type) {
		case tether.TextBlock:
			fmt.Fprintln(p.out, b.Text)
		case tether.ImageBlock:
			fmt.Fprintln(p.out, p.muted.Render(fmt.Sprintf("[image %s, %d bytes]", b.MimeType, len(b.Data))))
		}
	}
	if result.IsError {
		return fmt.Errorf("%s", p.err.Render(name+" reported an error"))
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
