// Package vectorstore defines the storage contract for embedded chunks and
// the ranking helpers shared by its backends.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dgallion1/citewise/internal/domain"
)

// Store persists embedded chunks per collection and answers similarity
// queries over them. Writes are keyed by chunk id and replace on conflict.
type Store interface {
	// Upsert writes chunks into collection. Either every chunk is stored or
	// none is.
	Upsert(ctx context.Context, collection string, chunks []domain.EmbeddedChunk) error

	// ReplaceSource upserts chunks and removes every other chunk of source
	// in collection.
	ReplaceSource(ctx context.Context, collection, source string, chunks []domain.EmbeddedChunk) error

	// Query returns at most topK matches across collections, best first.
	// Unknown collections contribute nothing.
	Query(ctx context.Context, collections []string, vector []float32, topK int) ([]domain.Match, error)

	// SourceHash returns the content hash stored for source, if any.
	SourceHash(ctx context.Context, collection, source string) (hash string, found bool, err error)

	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	Close() error
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SortMatches orders matches by score descending, then page_start, source
// and chunk id ascending, so equal scores rank the same on every backend.
func SortMatches(matches []domain.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.PageStart != b.PageStart {
			return a.PageStart < b.PageStart
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.ChunkID < b.ChunkID
	})
}

// TopK sorts matches and keeps the best k.
func TopK(matches []domain.Match, k int) []domain.Match {
	SortMatches(matches)
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// ValidateChunks checks that every chunk carries a vector of one shared
// dimension and returns it.
func ValidateChunks(chunks []domain.EmbeddedChunk) (int, error) {
	dims := 0
	for _, c := range chunks {
		if c.ID == "" {
			return 0, fmt.Errorf("%w: chunk %d of %q has no id", domain.ErrConfiguration, c.Index, c.Source)
		}
		if len(c.Vector) == 0 {
			return 0, fmt.Errorf("%w: chunk %s has no vector", domain.ErrConfiguration, c.ID)
		}
		if dims == 0 {
			dims = len(c.Vector)
		}
		if len(c.Vector) != dims {
			return 0, fmt.Errorf("%w: chunk %s has %d dimensions, expected %d", domain.ErrConfiguration, c.ID, len(c.Vector), dims)
		}
	}
	return dims, nil
}

// ValidateCollectionName rejects names that cannot be used on every backend.
func ValidateCollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: collection name is empty", domain.ErrConfiguration)
	}
	if strings.ContainsAny(name, "/\\?#") {
		return fmt.Errorf("%w: collection name %q contains a reserved character", domain.ErrConfiguration, name)
	}
	return nil
}

// Dedupe drops repeated collection names, keeping first-seen order.
func Dedupe(collections []string) []string {
	seen := make(map[string]bool, len(collections))
	out := make([]string, 0, len(collections))
	for _, c := range collections {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
