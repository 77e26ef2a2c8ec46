// Package qdrant is a vector store backed by a Qdrant server over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/vectorstore"
)

// Store talks to one Qdrant instance. Each citewise collection is a Qdrant
// collection with cosine distance; chunk ids are used as point ids.
type Store struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ vectorstore.Store = (*Store)(nil)

func New(baseURL, apiKey string) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload payload   `json:"payload"`
}

type payload struct {
	ChunkID     string `json:"chunk_id"`
	Source      string `json:"source"`
	PageStart   int    `json:"page_start"`
	PageEnd     int    `json:"page_end"`
	Seq         int    `json:"seq"`
	Text        string `json:"text"`
	ContentHash string `json:"content_hash"`
}

type condition struct {
	Key   string         `json:"key,omitempty"`
	Match map[string]any `json:"match,omitempty"`
	HasID []string       `json:"has_id,omitempty"`
}

type filter struct {
	Must    []condition `json:"must,omitempty"`
	MustNot []condition `json:"must_not,omitempty"`
}

func sourceIs(source string) condition {
	return condition{Key: "source", Match: map[string]any{"value": source}}
}

func hashIs(hash string) condition {
	return condition{Key: "content_hash", Match: map[string]any{"value": hash}}
}

// errNotFound marks a 404 from Qdrant.
type errNotFound struct{ path string }

func (e errNotFound) Error() string { return "qdrant: not found: " + e.path }

// do sends a JSON request and decodes the "result" field of the reply into out.
func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		httpReq.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound{path: path}
	}
	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: qdrant %s %s: status %d: %s", domain.ErrStoreUnavailable, method, path, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	envelope := struct {
		Result any `json:"result"`
	}{Result: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

// collectionDims returns the vector size of a collection, or 0 if it does
// not exist.
func (s *Store) collectionDims(ctx context.Context, name string) (int, error) {
	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.do(ctx, http.MethodGet, collectionPath(name), nil, &info)
	if _, ok := err.(errNotFound); ok {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Config.Params.Vectors.Size, nil
}

func (s *Store) ensureCollection(ctx context.Context, name string, dims int) error {
	existing, err := s.collectionDims(ctx, name)
	if err != nil {
		return err
	}
	if existing == 0 {
		body := map[string]any{
			"vectors": map[string]any{"size": dims, "distance": "Cosine"},
		}
		err := s.do(ctx, http.MethodPut, collectionPath(name), body, nil)
		if err == nil {
			return nil
		}
		// Another writer may have created it in the meantime.
		if existing, _ = s.collectionDims(ctx, name); existing == 0 {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}
	if existing != dims {
		return fmt.Errorf("%w: collection %q holds %d-dimensional vectors, got %d", domain.ErrConfiguration, name, existing, dims)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, chunks []domain.EmbeddedChunk) error {
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return err
	}
	dims, err := vectorstore.ValidateChunks(chunks)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, collection, dims); err != nil {
		return err
	}

	points := make([]point, len(chunks))
	for i, c := range chunks {
		points[i] = point{
			ID:     c.ID,
			Vector: c.Vector,
			Payload: payload{
				ChunkID:     c.ID,
				Source:      c.Source,
				PageStart:   c.PageStart,
				PageEnd:     c.PageEnd,
				Seq:         c.Index,
				Text:        c.Text,
				ContentHash: c.ContentHash,
			},
		}
	}
	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, collectionPath(collection)+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// ReplaceSource writes the new points first and then deletes the source's
// points that were not rewritten, so readers never see the source missing.
// Qdrant has no multi-request transaction; a failed delete leaves stale
// points behind, and SourceHash then reports the source as mixed so the
// next ingest replaces it again.
func (s *Store) ReplaceSource(ctx context.Context, collection, source string, chunks []domain.EmbeddedChunk) error {
	if err := s.Upsert(ctx, collection, chunks); err != nil {
		return err
	}

	keep := make([]string, len(chunks))
	for i, c := range chunks {
		keep[i] = c.ID
	}
	f := filter{Must: []condition{sourceIs(source)}}
	if len(keep) > 0 {
		f.MustNot = []condition{{HasID: keep}}
	}

	err := s.do(ctx, http.MethodPost, collectionPath(collection)+"/points/delete?wait=true", map[string]any{"filter": f}, nil)
	if _, ok := err.(errNotFound); ok {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete stale points of %s: %w", source, err)
	}
	return nil
}

type scoredPoint struct {
	ID      any     `json:"id"`
	Score   float64 `json:"score"`
	Payload payload `json:"payload"`
}

func (s *Store) Query(ctx context.Context, collections []string, vector []float32, topK int) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrConfiguration, topK)
	}

	var merged []domain.Match
	for _, name := range vectorstore.Dedupe(collections) {
		body := map[string]any{
			"vector":       vector,
			"limit":        topK,
			"with_payload": true,
		}
		var result []scoredPoint
		err := s.do(ctx, http.MethodPost, collectionPath(name)+"/points/search", body, &result)
		if _, ok := err.(errNotFound); ok {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", name, err)
		}

		for _, p := range result {
			merged = append(merged, domain.Match{
				ChunkID:    p.Payload.ChunkID,
				Collection: name,
				Source:     p.Payload.Source,
				PageStart:  p.Payload.PageStart,
				PageEnd:    p.Payload.PageEnd,
				Text:       p.Payload.Text,
				Score:      p.Score,
			})
		}
	}
	return vectorstore.TopK(merged, topK), nil
}

// SourceHash returns the content hash stored for source. When points of
// more than one hash are present, as after an interrupted ReplaceSource,
// it reports found with an empty hash, which matches no document.
func (s *Store) SourceHash(ctx context.Context, collection, source string) (string, bool, error) {
	first, found, err := s.firstPoint(ctx, collection, filter{Must: []condition{sourceIs(source)}})
	if err != nil || !found {
		return "", false, err
	}
	hash := first.Payload.ContentHash

	_, mixed, err := s.firstPoint(ctx, collection, filter{
		Must:    []condition{sourceIs(source)},
		MustNot: []condition{hashIs(hash)},
	})
	if err != nil {
		return "", false, err
	}
	if mixed {
		return "", true, nil
	}
	return hash, true, nil
}

func (s *Store) firstPoint(ctx context.Context, collection string, f filter) (scoredPoint, bool, error) {
	body := map[string]any{
		"filter":       f,
		"limit":        1,
		"with_payload": true,
		"with_vector":  false,
	}
	var result struct {
		Points []scoredPoint `json:"points"`
	}
	err := s.do(ctx, http.MethodPost, collectionPath(collection)+"/points/scroll", body, &result)
	if _, ok := err.(errNotFound); ok {
		return scoredPoint{}, false, nil
	}
	if err != nil {
		return scoredPoint{}, false, fmt.Errorf("scroll %s: %w", collection, err)
	}
	if len(result.Points) == 0 {
		return scoredPoint{}, false, nil
	}
	return result.Points[0], true, nil
}

func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	err := s.do(ctx, http.MethodDelete, collectionPath(name), nil, nil)
	if _, ok := err.(errNotFound); ok {
		return nil
	}
	return err
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	var result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := s.do(ctx, http.MethodGet, "/collections", nil, &result); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(result.Collections))
	for _, c := range result.Collections {
		names = append(names, c.Name)
	}
	slices.Sort(names)
	return names, nil
}

// Close releases resources.
func (s *Store) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}
