// Package eval replays golden queries through the query engine and scores
// whether the expected source and pages were retrieved.
package eval

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
)

// Searcher is the retrieval path being scored; query.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, text string, topK int, collections []string) ([]domain.QueryResult, error)
}

// CollectionLister supplies the collections searched when neither the
// golden query nor the evaluator names any.
type CollectionLister interface {
	ListCollections(ctx context.Context) ([]string, error)
}

// Options configures an Evaluator.
type Options struct {
	DefaultK    int      // Used when a golden query has no k.
	Collections []string // Used when a golden query names no collections.
}

// Evaluator scores golden queries against a Searcher.
type Evaluator struct {
	search Searcher
	lister CollectionLister
	opts   Options
}

// New returns an Evaluator. lister may be nil if every query or
// opts.Collections names its collections.
func New(search Searcher, lister CollectionLister, opts Options) *Evaluator {
	if opts.DefaultK <= 0 {
		opts.DefaultK = 5
	}
	return &Evaluator{search: search, lister: lister, opts: opts}
}

// Evaluate runs every golden query and returns one record per query, in
// input order. It stops at the first query that cannot be run.
func (e *Evaluator) Evaluate(ctx context.Context, queries []GoldenQuery) ([]domain.EvalRecord, error) {
	records := make([]domain.EvalRecord, 0, len(queries))
	for i, q := range queries {
		q = q.withDefaults(i, e.opts.DefaultK)
		if err := q.Validate(); err != nil {
			return nil, err
		}

		collections, err := e.collectionsFor(ctx, q)
		if err != nil {
			return nil, err
		}

		var results []domain.QueryResult
		if len(collections) > 0 {
			results, err = e.search.Search(ctx, q.Query, q.K, collections)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", q.ID, err)
			}
		}
		records = append(records, Score(q, results))
	}
	return records, nil
}

func (e *Evaluator) collectionsFor(ctx context.Context, q GoldenQuery) ([]string, error) {
	if len(q.Collections) > 0 {
		return q.Collections, nil
	}
	if len(e.opts.Collections) > 0 {
		return e.opts.Collections, nil
	}
	if e.lister == nil {
		return nil, fmt.Errorf("%w: query %s names no collections", domain.ErrConfiguration, q.ID)
	}
	return e.lister.ListCollections(ctx)
}

// Score compares the top-k results of q against its expected citation.
// A result hits when it names the expected source and shares at least one
// expected page. Coverage is the share of expected pages found on hits.
func Score(q GoldenQuery, results []domain.QueryResult) domain.EvalRecord {
	expected := normalizePages(q.ExpectedPages)
	if q.K > 0 && len(results) > q.K {
		results = results[:q.K]
	}

	want := make(map[int]bool, len(expected))
	for _, p := range expected {
		want[p] = true
	}

	hit := false
	found := make(map[int]bool)
	for _, r := range results {
		if r.Citation.Source != q.ExpectedSource {
			continue
		}
		var overlap []int
		for _, p := range r.Citation.Pages {
			if want[p] {
				overlap = append(overlap, p)
			}
		}
		if len(overlap) == 0 {
			continue
		}
		hit = true
		for _, p := range overlap {
			found[p] = true
		}
	}

	coverage := 0.0
	if len(expected) > 0 {
		coverage = float64(len(found)) / float64(len(expected))
	}

	retrieved := results
	if retrieved == nil {
		retrieved = []domain.QueryResult{}
	}
	return domain.EvalRecord{
		QueryID:        q.ID,
		ExpectedSource: q.ExpectedSource,
		ExpectedPages:  expected,
		Retrieved:      retrieved,
		HitAtK:         hit,
		Coverage:       coverage,
	}
}

func normalizePages(pages []int) []int {
	out := slices.Clone(pages)
	slices.Sort(out)
	return slices.Compact(out)
}

// Summary holds the aggregate metrics of one evaluation run.
type Summary struct {
	Queries      int     `json:"queries"`
	Hits         int     `json:"hits"`
	RecallAtK    float64 `json:"recall_at_k"`
	MeanCoverage float64 `json:"mean_coverage"`
}

func (s Summary) String() string {
	return fmt.Sprintf("queries=%d hits=%d recall@k=%.3f mean_coverage=%.3f", s.Queries, s.Hits, s.RecallAtK, s.MeanCoverage)
}

// Aggregate derives run metrics from log rows alone, so a log read back
// from disk yields the same summary as the run that wrote it.
func Aggregate(rows []Row) Summary {
	s := Summary{Queries: len(rows)}
	if len(rows) == 0 {
		return s
	}
	var coverage float64
	for _, r := range rows {
		if r.HitAtK {
			s.Hits++
		}
		coverage += r.Coverage
	}
	s.RecallAtK = float64(s.Hits) / float64(len(rows))
	s.MeanCoverage = coverage / float64(len(rows))
	return s
}

// Summarize is Aggregate over the rows of records.
func Summarize(records []domain.EvalRecord) Summary {
	return Aggregate(Rows(records))
}

func sourcesOf(results []domain.QueryResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = strings.TrimSpace(r.Citation.Source)
	}
	return out
}
