// Package storetest is a behavioural suite every vectorstore.Store backend
// must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Chunk builds an embedded chunk with a deterministic id.
func Chunk(source string, index, pageStart, pageEnd int, hash string, vector ...float32) domain.EmbeddedChunk {
	return domain.EmbeddedChunk{
		Chunk: domain.Chunk{
			ID:        domain.ChunkID(source, index),
			Source:    source,
			Text:      source + " chunk",
			PageStart: pageStart,
			PageEnd:   pageEnd,
			Index:     index,
		},
		Vector:      vector,
		ContentHash: hash,
	}
}

func ids(matches []domain.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ChunkID
	}
	return out
}

// Run exercises open against the Store contract. open must return a fresh,
// empty store.
func Run(t *testing.T, open func(t *testing.T) vectorstore.Store) {
	ctx := context.Background()

	t.Run("upsert then query", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, "docs", []domain.EmbeddedChunk{
			Chunk("a", 0, 1, 1, "h1", 1, 0),
			Chunk("a", 1, 1, 2, "h1", 0, 1),
			Chunk("a", 2, 2, 2, "h1", 0.7, 0.7),
		}))

		got, err := s.Query(ctx, []string{"docs"}, []float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, domain.ChunkID("a", 0), got[0].ChunkID)
		assert.Equal(t, domain.ChunkID("a", 2), got[1].ChunkID)
		assert.InDelta(t, 1.0, got[0].Score, 1e-6)
		assert.Equal(t, "docs", got[0].Collection)
		assert.Equal(t, "a", got[0].Source)
		assert.Equal(t, "a chunk", got[0].Text)
	})

	t.Run("upsert is idempotent by id", func(t *testing.T) {
		s := open(t)
		c := Chunk("a", 0, 1, 1, "h1", 1, 0)
		require.NoError(t, s.Upsert(ctx, "docs", []domain.EmbeddedChunk{c}))
		c.Text = "rewritten"
		require.NoError(t, s.Upsert(ctx, "docs", []domain.EmbeddedChunk{c}))

		got, err := s.Query(ctx, []string{"docs"}, []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "rewritten", got[0].Text)
	})

	t.Run("merges collections before truncating", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, "one", []domain.EmbeddedChunk{
			Chunk("a", 0, 1, 1, "h", 1, 0),
			Chunk("a", 1, 2, 2, "h", 0, 1),
		}))
		require.NoError(t, s.Upsert(ctx, "two", []domain.EmbeddedChunk{
			Chunk("b", 0, 1, 1, "h", 0.9, 0.1),
			Chunk("b", 1, 2, 2, "h", -1, 0),
		}))

		got, err := s.Query(ctx, []string{"one", "two", "one"}, []float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{
			domain.ChunkID("a", 0),
			domain.ChunkID("b", 0),
			domain.ChunkID("a", 1),
		}, ids(got))
	})

	t.Run("returns everything when fewer than top k exist", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, "docs", []domain.EmbeddedChunk{
			Chunk("a", 0, 1, 1, "h", 1, 0),
			Chunk("a", 1, 2, 2, "h", -1, 0),
		}))
		got, err := s.Query(ctx, []string{"docs"}, []float32{1, 0}, 50)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("unknown collection is empty", func(t *testing.T) {
		s := open(t)
		got, err := s.Query(ctx, []string{"missing"}, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("replace source drops stale chunks", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, "docs", []domain.EmbeddedChunk{
			Chunk("a", 0, 1, 1, "old", 1, 0),
			Chunk("a", 1, 2, 2, "old", 1, 0),
			Chunk("a", 2, 3, 3, "old", 1, 0),
			Chunk("b", 0, 1, 1, "other", 1, 0),
		}))

		require.NoError(t, s.ReplaceSource(ctx, "docs", "a", []domain.EmbeddedChunk{
			Chunk("a", 0, 1, 1, "new", 1, 0),
		}))

		got, err := s.Query(ctx, []string{"docs"}, []float32{1, 0}, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{domain.ChunkID("a", 0), domain.ChunkID("b", 0)}, ids(got))

		hash, found, err := s.SourceHash(ctx, "docs", "a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "new", hash)
	})

	t.Run("concurrent writers of different sources", func(t *testing.T) {
		s := open(t)
		const writers = 16

		var wg sync.WaitGroup
		errs := make([]error, writers)
		for w := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				source := fmt.Sprintf("src%02d", w)
				chunks := []domain.EmbeddedChunk{
					Chunk(source, 0, 1, 1, source, 1, 0),
					Chunk(source, 1, 2, 2, source, 0, 1),
				}
				if err := s.Upsert(ctx, "shared", chunks); err != nil {
					errs[w] = err
					return
				}
				errs[w] = s.ReplaceSource(ctx, "shared", source, chunks[:1])
			}()
		}
		wg.Wait()
		for w, err := range errs {
			require.NoError(t, err, "writer %d", w)
		}

		got, err := s.Query(ctx, []string{"shared"}, []float32{1, 0}, 50)
		require.NoError(t, err)
		assert.Len(t, got, writers)
		for w := range writers {
			source := fmt.Sprintf("src%02d", w)
			hash, found, err := s.SourceHash(ctx, "shared", source)
			require.NoError(t, err)
			assert.True(t, found, source)
			assert.Equal(t, source, hash)
		}
	})

	t.Run("source hash", func(t *testing.T) {
		s := open(t)
		_, found, err := s.SourceHash(ctx, "docs", "a")
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, s.Upsert(ctx, "docs", []domain.EmbeddedChunk{Chunk("a", 0, 1, 1, "h1", 1, 0)}))
		hash, found, err := s.SourceHash(ctx, "docs", "a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "h1", hash)

		_, found, err = s.SourceHash(ctx, "docs", "b")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("list and delete collections", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Upsert(ctx, "zeta", []domain.EmbeddedChunk{Chunk("a", 0, 1, 1, "h", 1, 0)}))
		require.NoError(t, s.Upsert(ctx, "alpha", []domain.EmbeddedChunk{Chunk("b", 0, 1, 1, "h", 1, 0)}))

		names, err := s.ListCollections(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "zeta"}, names)

		require.NoError(t, s.DeleteCollection(ctx, "zeta"))
		require.NoError(t, s.DeleteCollection(ctx, "never-existed"))
		names, err = s.ListCollections(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha"}, names)

		got, err := s.Query(ctx, []string{"zeta"}, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("rejects mixed dimensions", func(t *testing.T) {
		s := open(t)
		err := s.Upsert(ctx, "docs", []domain.EmbeddedChunk{
			Chunk("a", 0, 1, 1, "h", 1, 0),
			Chunk("a", 1, 1, 1, "h", 1, 0, 0),
		})
		assert.ErrorIs(t, err, domain.ErrConfiguration)

		got, err := s.Query(ctx, []string{"docs"}, []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, got, "a rejected upsert must not leave partial writes")
	})

	t.Run("rejects non-positive top k", func(t *testing.T) {
		s := open(t)
		_, err := s.Query(ctx, []string{"docs"}, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}
