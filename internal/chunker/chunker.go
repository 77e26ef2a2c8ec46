package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
)

// Config controls chunking behavior.
type Config struct {
	Size    int  // Window length in units.
	Overlap int  // Units shared by consecutive windows.
	Unit    Unit // What a unit is; fixed for the whole pipeline.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Size:    1000,
		Overlap: 200,
		Unit:    UnitRune,
	}
}

// Validate checks 0 <= Overlap < Size.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrConfiguration, c.Size, c.Overlap)
	}
	if _, err := ParseUnit(string(c.Unit)); err != nil {
		return err
	}
	return nil
}

// Chunk splits pages into overlapping windows and records the page span of
// each. The result depends only on source, pages and cfg.
func Chunk(source string, pages []domain.Page, cfg Config) ([]domain.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Unit, _ = ParseUnit(string(cfg.Unit))

	idx := buildIndex(pages, cfg.Unit)
	if len(idx.units) == 0 {
		return nil, nil
	}

	step := cfg.Size - cfg.Overlap
	var chunks []domain.Chunk
	for _, r := range idx.runs {
		for start := r.start; ; start += step {
			end := min(start+cfg.Size, r.end)

			pageStart, pageEnd := idx.span(start, end)
			text := strings.TrimSpace(idx.text(start, end))
			if pageStart > 0 && text != "" {
				index := len(chunks)
				chunks = append(chunks, domain.Chunk{
					ID:        domain.ChunkID(source, index),
					Source:    source,
					Text:      text,
					PageStart: pageStart,
					PageEnd:   pageEnd,
					Index:     index,
				})
			}

			if end == r.end {
				break
			}
		}
	}
	return chunks, nil
}

// pageIndex is the concatenated unit stream of a document together with the
// page every unit came from. Separators between pages carry page 0.
// Runs are maximal stretches of consecutive pages with text; a window never
// crosses from one run into the next, so no chunk spans a blank page.
// It is built once and never mutated.
type pageIndex struct {
	units []string
	pages []int
	runs  []run
	sep   string
}

// run is the unit range [start, end) of consecutive non-empty pages.
type run struct {
	start, end int
}

func buildIndex(pages []domain.Page, unit Unit) pageIndex {
	idx := pageIndex{}
	if unit == UnitWord {
		idx.sep = " "
	}

	prev := 0
	inRun := false
	for _, p := range pages {
		cleaned := cleanPage(p.Text)
		if cleaned == "" {
			inRun = false
			continue
		}
		if inRun && p.Number != prev+1 {
			inRun = false
		}

		if !inRun {
			idx.runs = append(idx.runs, run{start: len(idx.units), end: len(idx.units)})
			inRun = true
		} else if unit == UnitRune {
			idx.units = append(idx.units, " ")
			idx.pages = append(idx.pages, 0)
		}
		for _, u := range tokenize(cleaned, unit) {
			idx.units = append(idx.units, u)
			idx.pages = append(idx.pages, p.Number)
		}
		idx.runs[len(idx.runs)-1].end = len(idx.units)
		prev = p.Number
	}
	return idx
}

// span returns the lowest and highest page touched by units [start, end).
// Pages are non-decreasing along the stream, so the first and last
// non-separator units decide it.
func (idx pageIndex) span(start, end int) (int, int) {
	lo, hi := 0, 0
	for i := start; i < end; i++ {
		if idx.pages[i] != 0 {
			lo = idx.pages[i]
			break
		}
	}
	for i := end - 1; i >= start; i-- {
		if idx.pages[i] != 0 {
			hi = idx.pages[i]
			break
		}
	}
	return lo, hi
}

func (idx pageIndex) text(start, end int) string {
	return strings.Join(idx.units[start:end], idx.sep)
}

var cidRe = regexp.MustCompile(`\(cid:\d+\)`)

// cleanPage drops (cid:N) glyph artifacts left by PDF font maps and
// collapses every whitespace run to a single space.
func cleanPage(text string) string {
	text = cidRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
