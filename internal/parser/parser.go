package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
)

// Extractor converts raw document bytes into ordered, 1-indexed pages.
// Formats without physical pages number their heading sections instead.
type Extractor interface {
	Extract(r io.Reader, filename string) ([]domain.Page, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".docx":     true,
}

// ForFile returns the appropriate extractor for a filename.
func ForFile(filename string, pdfFallback bool) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return &PDFParser{FallbackPdftotext: pdfFallback}, nil
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported file extension: %q", domain.ErrExtraction, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// SourceName is the default source name for a file: its base name without extension.
func SourceName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// sections accumulates heading-delimited text into pseudo-pages.
type sections struct {
	pages   []domain.Page
	current strings.Builder
}

// add appends a block of text to the current section.
func (s *sections) add(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if s.current.Len() > 0 {
		s.current.WriteString("\n\n")
	}
	s.current.WriteString(text)
}

// heading closes the current section (if it has text) and opens a new one
// starting with title.
func (s *sections) heading(title string) {
	s.flush()
	s.add(title)
}

func (s *sections) flush() {
	if strings.TrimSpace(s.current.String()) == "" {
		s.current.Reset()
		return
	}
	s.pages = append(s.pages, domain.Page{Number: len(s.pages) + 1, Text: s.current.String()})
	s.current.Reset()
}

func (s *sections) result() []domain.Page {
	s.flush()
	return s.pages
}
