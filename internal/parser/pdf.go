package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files. It tries the Go library first,
// then falls back to pdftotext if available.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Extract(r io.Reader, filename string) ([]domain.Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrExtraction, filename, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrExtraction, filename)
	}

	pages, err := extractPDFPages(data)
	if err != nil && p.FallbackPdftotext {
		pages, err = extractPdftotext(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExtraction, filename, err)
	}
	return pages, nil
}

// extractPDFPages returns every page, in order, including pages whose text
// could not be read (as empty text) so numbering stays contiguous.
func extractPDFPages(data []byte) (pages []domain.Page, err error) {
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	pages = make([]domain.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		text := ""
		if !page.V.IsNull() {
			if t, err := page.GetPlainText(nil); err == nil {
				text = t
			}
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}
	return pages, nil
}

func extractPdftotext(data []byte) ([]domain.Page, error) {
	// pdftotext needs a file path.
	tmp, err := os.CreateTemp("", "citewise-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	cmd := exec.Command("pdftotext", "-layout", tmpPath, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	return splitFormFeeds(string(out)), nil
}

// splitFormFeeds numbers form-feed separated pages. pdftotext terminates
// every page with a form feed, so a trailing empty segment is dropped.
func splitFormFeeds(text string) []domain.Page {
	parts := strings.Split(text, "\f")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]domain.Page, len(parts))
	for i, part := range parts {
		pages[i] = domain.Page{Number: i + 1, Text: part}
	}
	return pages
}
