package domain

import "errors"

// Errors surfaced by the ingestion, query and evaluation paths.
// Callers match them with errors.Is; adapters wrap them with detail.
var (
	// ErrExtraction indicates an unreadable or empty document.
	ErrExtraction = errors.New("extraction failed")

	// ErrConfiguration indicates invalid chunking, top-k or collection settings.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmbedding indicates the embedding capability failed for a batch.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStoreUnavailable indicates the vector store cannot be reached.
	ErrStoreUnavailable = errors.New("vector store unavailable")
)
