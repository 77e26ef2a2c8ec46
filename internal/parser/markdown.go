package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// pageHeadingLevel is the deepest heading level that starts a new pseudo-page
// in formats without physical pages. Deeper headings stay inside the section.
const pageHeadingLevel = 2

// MarkdownParser handles Markdown files using goldmark.
type MarkdownParser struct{}

func (p *MarkdownParser) Extract(r io.Reader, filename string) ([]domain.Page, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var s sections
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level <= pageHeadingLevel {
			s.heading(extractText(n, src))
			continue
		}
		s.add(extractText(n, src))
	}
	return s.result(), nil
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
