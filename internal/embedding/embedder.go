// Package embedding turns chunk and query text into vectors.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/dgallion1/citewise/internal/domain"
)

// Embedder generates vector embeddings for a batch of texts.
// Implementations must return one vector per input, in input order, and the
// vector for a text must not depend on what else is in the batch.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size, or 0 if the backend decides it.
	Dimensions() int

	// Model names the embedding model.
	Model() string
}

// DefaultBatchSize is used when a Batcher is built with a non-positive size.
const DefaultBatchSize = 32

// Batcher splits work into fixed-size calls to an Embedder and reassembles
// the results. A failure on any item fails the whole call.
type Batcher struct {
	embedder  Embedder
	batchSize int
	stats     *Stats
}

// NewBatcher wraps e. stats may be nil.
func NewBatcher(e Embedder, batchSize int, stats *Stats) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Batcher{embedder: e, batchSize: batchSize, stats: stats}
}

// Model names the underlying embedding model.
func (b *Batcher) Model() string { return b.embedder.Model() }

// EmbedChunks embeds every chunk and stamps each result with contentHash.
// Output order and length match chunks.
func (b *Batcher) EmbedChunks(ctx context.Context, chunks []domain.Chunk, contentHash string) ([]domain.EmbeddedChunk, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([]domain.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = domain.EmbeddedChunk{Chunk: c, Vector: vectors[i], ContentHash: contentHash}
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := b.embedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (b *Batcher) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	dims := b.embedder.Dimensions()

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		batch := texts[start:end]

		began := time.Now()
		got, err := b.embedder.Embed(ctx, batch)
		if b.stats != nil {
			b.stats.Record(time.Since(began).Milliseconds(), err != nil)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: items %d-%d: %w", domain.ErrEmbedding, start, end-1, err)
		}
		if len(got) != len(batch) {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d", domain.ErrEmbedding, len(batch), len(got))
		}

		for i, v := range got {
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: empty vector for item %d", domain.ErrEmbedding, start+i)
			}
			if dims == 0 {
				dims = len(v)
			}
			if len(v) != dims {
				return nil, fmt.Errorf("%w: item %d has %d dimensions, expected %d", domain.ErrEmbedding, start+i, len(v), dims)
			}
		}
		vectors = append(vectors, got...)
	}
	return vectors, nil
}
