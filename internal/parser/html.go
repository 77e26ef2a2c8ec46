package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files. h1/h2 headings open a new pseudo-page.
type HTMLParser struct{}

func (p *HTMLParser) Extract(r io.Reader, filename string) ([]domain.Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var s sections
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				if level <= pageHeadingLevel {
					s.heading(textContent(n))
				} else {
					s.add(textContent(n))
				}
				return
			}

			switch n.Data {
			case "script", "style", "nav", "footer", "header":
				return
			case "p", "li", "td", "blockquote", "pre":
				s.add(textContent(n))
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	return s.result(), nil
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
