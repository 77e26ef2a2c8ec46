// Package query turns a natural-language question into cited search results.
package query

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/embedding"
	"github.com/dgallion1/citewise/internal/vectorstore"
)

// MaxTopK caps how many matches a single search asks the store for.
const MaxTopK = 50

// Engine embeds a query, searches the store and folds matches from the same
// source into one citation.
type Engine struct {
	store vectorstore.Store
	embed *embedding.Batcher
}

func NewEngine(store vectorstore.Store, embed *embedding.Batcher) *Engine {
	return &Engine{store: store, embed: embed}
}

// Search returns citation-level results for text over collections, best
// first. No matches is an empty result, not an error.
func (e *Engine) Search(ctx context.Context, text string, topK int, collections []string) ([]domain.QueryResult, error) {
	matches, err := e.Matches(ctx, text, topK, collections)
	if err != nil {
		return nil, err
	}
	return Assemble(matches), nil
}

// Hit is a citation together with the chunks that produced it.
type Hit struct {
	domain.QueryResult
	Chunks []domain.Match `json:"chunks"`
}

// SearchWithChunks is Search keeping the matched chunk text under each
// citation, in match order.
func (e *Engine) SearchWithChunks(ctx context.Context, text string, topK int, collections []string) ([]Hit, error) {
	matches, err := e.Matches(ctx, text, topK, collections)
	if err != nil {
		return nil, err
	}
	return AttachChunks(Assemble(matches), matches), nil
}

// Matches runs the raw store query behind Search without grouping.
func (e *Engine) Matches(ctx context.Context, text string, topK int, collections []string) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrConfiguration, topK)
	}
	if len(collections) == 0 {
		return nil, fmt.Errorf("%w: no collections to search", domain.ErrConfiguration)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text is empty", domain.ErrConfiguration)
	}

	vector, err := e.embed.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return e.store.Query(ctx, collections, vector, min(topK, MaxTopK))
}

// AttachChunks pairs each result with the matches from its source.
func AttachChunks(results []domain.QueryResult, matches []domain.Match) []Hit {
	bySource := make(map[string][]domain.Match)
	for _, m := range matches {
		bySource[m.Source] = append(bySource[m.Source], m)
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{QueryResult: r, Chunks: bySource[r.Citation.Source]}
	}
	return hits
}

// Assemble groups matches by source. A citation lists every page covered by
// any of its matches and scores as its best match. Results are ordered by
// score descending, then lowest page, then source name.
func Assemble(matches []domain.Match) []domain.QueryResult {
	type group struct {
		result domain.QueryResult
		pages  map[int]bool
	}
	bySource := make(map[string]*group)
	var order []string

	for _, m := range matches {
		g, ok := bySource[m.Source]
		if !ok {
			g = &group{
				result: domain.QueryResult{Citation: domain.Citation{Source: m.Source}, Score: m.Score},
				pages:  make(map[int]bool),
			}
			bySource[m.Source] = g
			order = append(order, m.Source)
		}
		g.result.Score = max(g.result.Score, m.Score)
		g.result.MatchedChunkIDs = append(g.result.MatchedChunkIDs, m.ChunkID)
		for p := m.PageStart; p <= m.PageEnd; p++ {
			g.pages[p] = true
		}
	}

	results := make([]domain.QueryResult, 0, len(order))
	for _, src := range order {
		g := bySource[src]
		pages := make([]int, 0, len(g.pages))
		for p := range g.pages {
			pages = append(pages, p)
		}
		slices.Sort(pages)
		g.result.Citation.Pages = pages
		results = append(results, g.result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if pa, pb := firstPage(a), firstPage(b); pa != pb {
			return pa < pb
		}
		return a.Citation.Source < b.Citation.Source
	})
	return results
}

func firstPage(r domain.QueryResult) int {
	if len(r.Citation.Pages) == 0 {
		return 0
	}
	return r.Citation.Pages[0]
}

// FormatCitation renders a result as "source pp. 3, 4, 7 (0.812)", or
// "source p. 3 (0.812)" for a single page.
func FormatCitation(r domain.QueryResult) string {
	pages := make([]string, len(r.Citation.Pages))
	for i, p := range r.Citation.Pages {
		pages[i] = fmt.Sprint(p)
	}
	prefix := "p."
	if len(pages) > 1 {
		prefix = "pp."
	}
	return fmt.Sprintf("%s %s %s (%.3f)", r.Citation.Source, prefix, strings.Join(pages, ", "), r.Score)
}
