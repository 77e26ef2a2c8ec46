// Package app assembles the store, embedder, pipeline and query engine from
// configuration. The server and the CLI share it.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgallion1/citewise/internal/config"
	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/embedding"
	"github.com/dgallion1/citewise/internal/embedding/hashing"
	"github.com/dgallion1/citewise/internal/embedding/remote"
	"github.com/dgallion1/citewise/internal/eval"
	"github.com/dgallion1/citewise/internal/pipeline"
	"github.com/dgallion1/citewise/internal/query"
	"github.com/dgallion1/citewise/internal/vectorstore"
	"github.com/dgallion1/citewise/internal/vectorstore/memory"
	"github.com/dgallion1/citewise/internal/vectorstore/pgvector"
	"github.com/dgallion1/citewise/internal/vectorstore/qdrant"
	"github.com/dgallion1/citewise/internal/vectorstore/sqlite"
)

// App holds the wired components.
type App struct {
	Config   config.Config
	Store    vectorstore.Store
	Stats    *embedding.Stats
	Batcher  *embedding.Batcher
	Pipeline *pipeline.Pipeline
	Engine   *query.Engine

	closers []func() error
}

// New validates cfg and builds every component. Close releases them.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Store: store}
	a.closers = append(a.closers, store.Close)

	embedder := NewEmbedder(cfg)
	if c, ok := embedder.(*remote.Client); ok {
		a.closers = append(a.closers, func() error { c.Close(); return nil })
	}

	a.Stats = embedding.NewStats(time.Hour)
	a.Batcher = embedding.NewBatcher(embedder, cfg.EmbeddingBatchSize, a.Stats)

	a.Pipeline, err = pipeline.New(store, a.Batcher, pipeline.Config{
		Chunk:       cfg.Chunk(),
		PDFFallback: cfg.PDFFallbackPdftotext,
		Concurrency: cfg.WorkerCount,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	queries := a.Batcher
	if cfg.QueryCacheTTL > 0 {
		queries = embedding.NewBatcher(embedding.NewCachedEmbedder(embedder, cfg.QueryCacheTTL), cfg.EmbeddingBatchSize, a.Stats)
	}
	a.Engine = query.NewEngine(store, queries)
	return a, nil
}

// Evaluator scores golden queries against the engine. Queries that name no
// collections search collections, or every collection when that is empty.
func (a *App) Evaluator(collections []string) *eval.Evaluator {
	return eval.New(a.Engine, a.Store, eval.Options{
		DefaultK:    a.Config.DefaultTopK,
		Collections: collections,
	})
}

// Close releases the store and any network clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore opens the configured vector store backend.
func OpenStore(cfg config.Config) (vectorstore.Store, error) {
	switch cfg.VectorStore {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreSQLite:
		s, err := sqlite.Open(cfg.VectorStoreLocation)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreQdrant:
		return qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey), nil
	case config.StorePgvector:
		s, err := pgvector.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrConfiguration, cfg.VectorStore)
}

// NewEmbedder returns the configured embedding provider.
func NewEmbedder(cfg config.Config) embedding.Embedder {
	if cfg.EmbeddingProvider == config.ProviderRemote {
		return remote.New(remote.Config{
			BaseURL:           cfg.EmbeddingURL,
			APIKey:            cfg.EmbeddingAPIKey,
			Model:             cfg.EmbeddingModel,
			Dims:              cfg.EmbeddingDims,
			RequestsPerSecond: cfg.EmbeddingRPS,
			Timeout:           cfg.EmbeddingTimeout,
		})
	}
	return hashing.New(cfg.EmbeddingDims)
}
