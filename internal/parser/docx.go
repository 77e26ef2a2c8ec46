package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx files. Heading 1/2 paragraphs open a new pseudo-page.
type DOCXParser struct{}

func (p *DOCXParser) Extract(r io.Reader, filename string) ([]domain.Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var s sections
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := docxParagraphText(para)
		if text == "" {
			continue
		}
		if level := docxHeadingLevel(para); level > 0 && level <= pageHeadingLevel {
			s.heading(text)
		} else {
			s.add(text)
		}
	}
	return s.result(), nil
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if !strings.HasPrefix(style, "heading") {
		return 0
	}
	var level int
	if _, err := fmt.Sscanf(strings.TrimPrefix(style, "heading"), "%d", &level); err != nil {
		return 0
	}
	if level < 1 || level > 6 {
		return 0
	}
	return level
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
