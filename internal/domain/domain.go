package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// Page is the extracted text of one PDF page. Numbers are 1-indexed.
type Page struct {
	Number int
	Text   string
}

// Document is a source file split into its ordered pages.
type Document struct {
	Source      string // Stable source name (file stem by default)
	Collection  string
	ContentHash string // SHA-256 of the raw bytes
	Pages       []Page
}

// Chunk is a window of document text with the page span it was cut from.
type Chunk struct {
	ID        string
	Source    string
	Text      string
	PageStart int
	PageEnd   int
	Index     int // Sequence number within the document
}

// EmbeddedChunk is a chunk paired with its vector, ready for storage.
type EmbeddedChunk struct {
	Chunk
	Vector      []float32
	ContentHash string
}

// Match is a raw nearest-neighbour hit returned by a vector store.
type Match struct {
	ChunkID    string  `json:"chunk_id"`
	Collection string  `json:"collection"`
	Source     string  `json:"source"`
	PageStart  int     `json:"page_start"`
	PageEnd    int     `json:"page_end"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Citation names a source document and the pages that support a result.
type Citation struct {
	Source string `json:"source"`
	Pages  []int  `json:"pages"` // Ascending, no duplicates
}

// QueryResult is one citation-level search result.
type QueryResult struct {
	Citation        Citation `json:"citation"`
	Score           float64  `json:"score"`
	MatchedChunkIDs []string `json:"matched_chunk_ids"`
}

// EvalRecord is the outcome of replaying one golden query.
type EvalRecord struct {
	QueryID        string        `json:"query_id"`
	ExpectedSource string        `json:"expected_source"`
	ExpectedPages  []int         `json:"expected_pages"`
	Retrieved      []QueryResult `json:"retrieved"`
	HitAtK         bool          `json:"hit_at_k"`
	Coverage       float64       `json:"coverage"`
}

// IngestionReport summarizes one ingest call.
type IngestionReport struct {
	Source         string `json:"source"`
	Collection     string `json:"collection"`
	ContentHash    string `json:"content_hash"`
	ChunksWritten  int    `json:"chunks_written"`
	PagesProcessed int    `json:"pages_processed"`
	Skipped        bool   `json:"skipped"`
}

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("citewise:chunk"))

// ChunkID derives the stable id of the index-th chunk of source.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(source+"\x00"+strconv.Itoa(index))).String()
}
