package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dgallion1/citewise/internal/chunker"
	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/embedding"
	"github.com/dgallion1/citewise/internal/parser"
	"github.com/dgallion1/citewise/internal/vectorstore"
	"golang.org/x/sync/errgroup"
)

// Config holds the settings one Pipeline applies to every document.
type Config struct {
	Chunk       chunker.Config
	PDFFallback bool // Shell out to pdftotext when the Go PDF reader fails.
	Concurrency int  // Documents ingested at once by IngestMany.
}

// Pipeline runs extract, chunk, embed and store for one document at a time.
// Stages of one document run in order; independent documents may run
// concurrently.
type Pipeline struct {
	store vectorstore.Store
	embed *embedding.Batcher
	cfg   Config
}

// New validates cfg and returns a Pipeline writing to store.
func New(store vectorstore.Store, embed *embedding.Batcher, cfg Config) (*Pipeline, error) {
	if err := cfg.Chunk.Validate(); err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Pipeline{store: store, embed: embed, cfg: cfg}, nil
}

// IngestRequest names one document and carries its raw bytes.
type IngestRequest struct {
	Source     string // Defaults to the file name without extension.
	Collection string // Defaults to the slug of Source.
	Filename   string // Picks the extractor; empty means PDF.
	Data       []byte

	// OnPhase, if set, is told when each stage starts.
	OnPhase func(JobStatus)
}

func (r IngestRequest) phase(s JobStatus) {
	if r.OnPhase != nil {
		r.OnPhase(s)
	}
}

// Names resolves the source and collection a request will be stored under.
func (r IngestRequest) Names() (source, collection string, err error) {
	source = strings.TrimSpace(r.Source)
	if source == "" && r.Filename != "" {
		source = parser.SourceName(r.Filename)
	}
	if source == "" {
		return "", "", fmt.Errorf("%w: document has no source name", domain.ErrConfiguration)
	}

	collection = strings.TrimSpace(r.Collection)
	if collection == "" {
		collection = CollectionFor(source)
	}
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return "", "", err
	}
	return source, collection, nil
}

// Ingest stores one document. Re-ingesting identical bytes under the same
// source is a no-op reported as Skipped. Changed bytes replace every chunk
// of the source. On error nothing from this call is stored.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (domain.IngestionReport, error) {
	source, collection, err := req.Names()
	if err != nil {
		return domain.IngestionReport{}, err
	}
	report := domain.IngestionReport{Source: source, Collection: collection}

	if len(req.Data) == 0 {
		return report, fmt.Errorf("%w: %s is empty", domain.ErrExtraction, source)
	}
	report.ContentHash = ContentHashHex(req.Data)

	existing, found, err := p.store.SourceHash(ctx, collection, source)
	if err != nil {
		return report, err
	}
	if found && existing == report.ContentHash {
		report.Skipped = true
		return report, nil
	}

	req.phase(StatusExtracting)
	filename := req.Filename
	if filepath.Ext(filename) == "" {
		filename = source + ".pdf"
	}
	extractor, err := parser.ForFile(filename, p.cfg.PDFFallback)
	if err != nil {
		return report, err
	}
	pages, err := extractor.Extract(bytes.NewReader(req.Data), filename)
	if err != nil {
		if !errors.Is(err, domain.ErrExtraction) {
			err = fmt.Errorf("%w: %s: %v", domain.ErrExtraction, filename, err)
		}
		return report, err
	}
	report.PagesProcessed = len(pages)

	req.phase(StatusChunking)
	chunks, err := chunker.Chunk(source, pages, p.cfg.Chunk)
	if err != nil {
		return report, err
	}
	if len(chunks) == 0 {
		return report, fmt.Errorf("%w: %s has no extractable text", domain.ErrExtraction, filename)
	}

	req.phase(StatusEmbedding)
	embedded, err := p.embed.EmbedChunks(ctx, chunks, report.ContentHash)
	if err != nil {
		return report, err
	}

	req.phase(StatusStoring)
	if found {
		err = p.store.ReplaceSource(ctx, collection, source, embedded)
	} else {
		err = p.store.Upsert(ctx, collection, embedded)
	}
	if err != nil {
		return report, fmt.Errorf("storing %s: %w", source, err)
	}

	report.ChunksWritten = len(embedded)
	return report, nil
}

// IngestResult pairs one IngestMany input with its outcome.
type IngestResult struct {
	Report domain.IngestionReport
	Err    error
}

// IngestMany ingests documents concurrently. Every document is attempted;
// results are in input order and the returned error joins the failures.
func (p *Pipeline) IngestMany(ctx context.Context, reqs []IngestRequest) ([]IngestResult, error) {
	results := make([]IngestResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			report, err := p.Ingest(ctx, req)
			results[i] = IngestResult{Report: report, Err: err}
			return nil
		})
	}
	g.Wait()

	var errs []error
	for i, r := range results {
		if r.Err != nil {
			name := reqs[i].Source
			if name == "" {
				name = reqs[i].Filename
			}
			errs = append(errs, fmt.Errorf("%s: %w", name, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// Slugify converts a string to a URL/path-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "-")
	}
	return s
}

// CollectionFor is the default collection of a source: one per document.
func CollectionFor(source string) string {
	if slug := Slugify(source); slug != "" {
		return slug
	}
	return "default"
}
