// Package memory is an in-process vector store using brute-force cosine
// similarity. Nothing survives Close.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/vectorstore"
)

type collection struct {
	dims   int
	chunks map[string]domain.EmbeddedChunk // by chunk id
}

// Store keeps every collection in a map guarded by one lock, so each call
// is observed as a whole or not at all.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

var _ vectorstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) Upsert(ctx context.Context, name string, chunks []domain.EmbeddedChunk) error {
	return s.write(name, "", false, chunks)
}

func (s *Store) ReplaceSource(ctx context.Context, name, source string, chunks []domain.EmbeddedChunk) error {
	return s.write(name, source, true, chunks)
}

func (s *Store) write(name, source string, replace bool, chunks []domain.EmbeddedChunk) error {
	if err := vectorstore.ValidateCollectionName(name); err != nil {
		return err
	}
	dims, err := vectorstore.ValidateChunks(chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[name]
	if ok && dims != 0 && col.dims != dims {
		return fmt.Errorf("%w: collection %q holds %d-dimensional vectors, got %d", domain.ErrConfiguration, name, col.dims, dims)
	}
	if !ok {
		if len(chunks) == 0 {
			return nil
		}
		col = &collection{dims: dims, chunks: make(map[string]domain.EmbeddedChunk)}
		s.collections[name] = col
	}

	if replace {
		for id, c := range col.chunks {
			if c.Source == source {
				delete(col.chunks, id)
			}
		}
	}
	for _, c := range chunks {
		c.Vector = slices.Clone(c.Vector)
		col.chunks[c.ID] = c
	}
	return nil
}

func (s *Store) Query(ctx context.Context, names []string, vector []float32, topK int) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrConfiguration, topK)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var merged []domain.Match
	for _, name := range vectorstore.Dedupe(names) {
		col, ok := s.collections[name]
		if !ok {
			continue
		}
		if col.dims != len(vector) {
			return nil, fmt.Errorf("%w: query has %d dimensions, collection %q has %d", domain.ErrConfiguration, len(vector), name, col.dims)
		}

		matches := make([]domain.Match, 0, len(col.chunks))
		for _, c := range col.chunks {
			matches = append(matches, domain.Match{
				ChunkID:    c.ID,
				Collection: name,
				Source:     c.Source,
				PageStart:  c.PageStart,
				PageEnd:    c.PageEnd,
				Text:       c.Text,
				Score:      vectorstore.Cosine(vector, c.Vector),
			})
		}
		merged = append(merged, vectorstore.TopK(matches, topK)...)
	}
	return vectorstore.TopK(merged, topK), nil
}

func (s *Store) SourceHash(ctx context.Context, name, source string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[name]
	if !ok {
		return "", false, nil
	}
	for _, c := range col.chunks {
		if c.Source == source {
			return c.ContentHash, true, nil
		}
	}
	return "", false, nil
}

func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// count returns the number of chunks stored in a collection.
func (s *Store) count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if col, ok := s.collections[name]; ok {
		return len(col.chunks)
	}
	return 0
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]*collection)
	return nil
}
