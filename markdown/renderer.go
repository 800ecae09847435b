package markdown

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/fwojciec/tether"
)

type renderer struct {
	bold      lipgloss.Style
	italic    lipgloss.Style
	heading   lipgloss.Style
	muted     lipgloss.Style
	underline lipgloss.Style
}

func newRenderer(theme tether.Theme) *renderer {
	return &renderer{
		bold:      lipgloss.NewStyle().Bold(true),
		italic:    lipgloss.NewStyle().Italic(true),
		heading:   lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
		underline: lipgloss.NewStyle().Underline(true),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

func (r *renderer) render(source []byte, width int) string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var sb strings.Builder
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		r.block(c, source, width, &sb)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *renderer) block(node ast.Node, source []byte, width int, sb *strings.Builder) {
	switch n := node.(type) {
	case *ast.Heading:
		sb.WriteString(wrap(r.heading.Render(r.inline(n, source)), width))
		r.blockGap(n, sb)

	case *ast.Paragraph:
		sb.WriteString(wrap(r.inline(n, source), width))
		r.blockGap(n, sb)

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		r.code(node, source, sb)
		r.blockGap(node, sb)

	case *ast.List:
		r.list(n, source, width, sb, 0)
		r.blockGap(n, sb)

	case *ast.ThematicBreak:
		sb.WriteString(r.muted.Render(strings.Repeat("─", min(width, 40))))
		sb.WriteString("\n")
		r.blockGap(n, sb)

	default:
		// Blockquotes and other uncommon blocks: recurse into children.
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			r.block(c, source, width, sb)
		}
	}
}

// blockGap writes the newline terminating a block and a blank separator line
// between sibling blocks.
func (r *renderer) blockGap(node ast.Node, sb *strings.Builder) {
	sb.WriteString("\n")
	if node.NextSibling() != nil {
		sb.WriteString("\n")
	}
}

// code renders a code block with a muted gutter and, for fenced blocks, the
// language tag.
func (r *renderer) code(node ast.Node, source []byte, sb *strings.Builder) {
	if fenced, ok := node.(*ast.FencedCodeBlock); ok {
		if lang := string(fenced.Language(source)); lang != "" {
			sb.WriteString(r.muted.Render(lang))
			sb.WriteString("\n")
		}
	}
	gutter := r.muted.Render("│") + " "
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.WriteString(gutter)
		sb.WriteString(strings.TrimRight(string(seg.Value(source)), "\n"))
		sb.WriteString("\n")
	}
}

func (r *renderer) list(node *ast.List, source []byte, width int, sb *strings.Builder, depth int) {
	num := node.Start
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		marker := "- "
		if node.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		indent := strings.Repeat("  ", depth)

		var content strings.Builder
		for ic := item.FirstChild(); ic != nil; ic = ic.NextSibling() {
			switch in := ic.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				content.WriteString(r.inline(in, source))
			case *ast.List:
				if content.Len() > 0 {
					r.listItem(sb, indent, marker, content.String(), width)
					content.Reset()
					marker = strings.Repeat(" ", len(marker))
				}
				r.list(in, source, width, sb, depth+1)
			default:
				r.block(ic, source, width, &content)
			}
		}
		if content.Len() > 0 {
			r.listItem(sb, indent, marker, content.String(), width)
		}
	}
}

// listItem writes one item with continuation lines aligned past the marker.
func (r *renderer) listItem(sb *strings.Builder, indent, marker, content string, width int) {
	prefix := indent + marker
	itemWidth := width - len(prefix)
	if itemWidth < 10 {
		itemWidth = 10
	}
	continuation := strings.Repeat(" ", len(prefix))
	for i, line := range strings.Split(wrap(content, itemWidth), "\n") {
		if i == 0 {
			sb.WriteString(prefix)
		} else {
			sb.WriteString(continuation)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

// inline collects the styled inline text of a block node's children.
func (r *renderer) inline(node ast.Node, source []byte) string {
	var sb strings.Builder
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.inlineNode(c, source, &sb)
	}
	return sb.String()
}

func (r *renderer) inlineNode(node ast.Node, source []byte, sb *strings.Builder) {
	switch n := node.(type) {
	case *ast.Text:
		sb.Write(n.Segment.Value(source))
		if n.SoftLineBreak() {
			sb.WriteByte(' ')
		}
		if n.HardLineBreak() {
			sb.WriteByte('\n')
		}

	case *ast.String:
		sb.Write(n.Value)

	case *ast.Emphasis:
		inner := r.inline(n, source)
		if n.Level == 1 {
			sb.WriteString(r.italic.Render(inner))
		} else {
			sb.WriteString(r.bold.Render(inner))
		}

	case *ast.CodeSpan:
		sb.WriteString(r.bold.Render(r.inline(n, source)))

	case *ast.Link:
		sb.WriteString(r.underline.Render(r.inline(n, source)))
		sb.WriteString(" ")
		sb.WriteString(r.muted.Render("(" + string(n.Destination) + ")"))

	case *ast.AutoLink:
		sb.WriteString(r.underline.Render(string(n.URL(source))))

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			r.inlineNode(c, source, sb)
		}
	}
}

func wrap(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(s)
}
