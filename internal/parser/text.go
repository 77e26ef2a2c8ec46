package parser

import (
	"io"

	"github.com/dgallion1/citewise/internal/domain"
)

// TextParser handles plain text files. Form feeds separate pages, which is
// also how pdftotext output arrives; without them the file is one page.
type TextParser struct{}

func (p *TextParser) Extract(r io.Reader, filename string) ([]domain.Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return splitFormFeeds(string(data)), nil
}
