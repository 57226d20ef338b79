package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Markdown splits a document into one page per H1/H2 section.
// Each page starts with its header path, e.g. "# Guide > ## Install",
// so a retrieved chunk still says where it came from.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates a Markdown extractor.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID())),
	}
}

// section is a heading with its position in the hierarchy.
type section struct {
	path    []string
	heading ast.Node
}

// Extract parses src.Data and returns its sections in document order.
// Text before the first heading becomes its own page.
func (m *Markdown) Extract(ctx context.Context, src Source) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source := bytes.ReplaceAll(src.Data, []byte("\r\n"), []byte("\n"))
	doc := m.md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect headings of %s: %w", src.Name, err)
	}

	var sections []section
	flatten(doc, tree.Items, nil, &sections)
	if len(sections) == 0 {
		return []string{strings.TrimSpace(string(source))}, nil
	}

	var pages []string
	if pre := strings.TrimSpace(string(source[:lineStart(source, sections[0].heading)])); pre != "" {
		pages = append(pages, pre)
	}
	for i, s := range sections {
		start := lineEnd(source, s.heading)
		end := len(source)
		if i+1 < len(sections) {
			end = lineStart(source, sections[i+1].heading)
		}
		body := ""
		if start < end {
			body = strings.TrimSpace(string(source[start:end]))
		}
		page := formatHeaderPath(s.path)
		if body != "" {
			page += "\n\n" + body
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// flatten lists TOC items depth-first, which is document order.
func flatten(doc ast.Node, items toc.Items, ancestors []string, out *[]section) {
	for _, item := range items {
		path := append(append([]string(nil), ancestors...), string(item.Title))
		if h := findHeadingByID(doc, string(item.ID)); h != nil {
			*out = append(*out, section{path: path, heading: h})
		}
		if len(item.Items) > 0 {
			flatten(doc, item.Items, path, out)
		}
	}
}

// formatHeaderPath turns ["Install", "Linux"] into "# Install > ## Linux".
func formatHeaderPath(path []string) string {
	parts := make([]string, len(path))
	for i, segment := range path {
		parts[i] = strings.Repeat("#", i+1) + " " + segment
	}
	return strings.Join(parts, " > ")
}

func findHeadingByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if v, ok := n.AttributeString("id"); ok {
			if b, ok := v.([]byte); ok && string(b) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// lineStart returns the offset of the first byte of the heading's line.
// For setext headings this is the text line; the underline is skipped by lineEnd.
func lineStart(source []byte, heading ast.Node) int {
	if heading.Lines().Len() == 0 {
		return 0
	}
	pos := heading.Lines().At(0).Start
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// lineEnd returns the offset just past the heading, including a setext underline.
func lineEnd(source []byte, heading ast.Node) int {
	lines := heading.Lines()
	if lines.Len() == 0 {
		return 0
	}
	pos := lines.At(lines.Len() - 1).Stop
	for pos < len(source) && source[pos] != '\n' {
		pos++
	}
	atx := bytes.HasPrefix(bytes.TrimLeft(source[lineStart(source, heading):], " "), []byte("#"))
	if !atx && isSetext(source, pos) {
		pos++
		for pos < len(source) && source[pos] != '\n' {
			pos++
		}
	}
	return pos
}

// isSetext reports whether the line after pos is a "===" or "---" underline.
func isSetext(source []byte, pos int) bool {
	if pos >= len(source) {
		return false
	}
	next := source[pos+1:]
	if i := bytes.IndexByte(next, '\n'); i >= 0 {
		next = next[:i]
	}
	line := strings.TrimSpace(string(next))
	return line != "" && (strings.Trim(line, "=") == "" || strings.Trim(line, "-") == "")
}
