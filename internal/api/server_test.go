package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/citewise/internal/app"
	"github.com/dgallion1/citewise/internal/config"
	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const annualText = "Revenue grew in the northern region.\fStaff turnover fell sharply after the new policy."

func newTestServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	cfg := config.Config{
		APIKey:             apiKey,
		ChunkSize:          200,
		ChunkOverlap:       20,
		ChunkUnit:          "rune",
		EmbeddingProvider:  config.ProviderHashing,
		EmbeddingDims:      64,
		EmbeddingBatchSize: 8,
		VectorStore:        config.StoreMemory,
		DefaultTopK:        5,
		WorkerCount:        2,
		MaxQueueSize:       10,
		MaxUploadBytes:     1 << 20,
		JobTTL:             time.Hour,
	}
	a, err := app.New(cfg)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := pipeline.NewOrchestrator(a.Pipeline, pipeline.OrchestratorConfig{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.JobTTL,
	}, log)
	orch.Start(context.Background())
	t.Cleanup(func() {
		orch.Stop()
		a.Close()
	})
	return NewServer(a, orch, log)
}

func uploadRequest(t *testing.T, target, field string, files map[string]string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func ingestSync(t *testing.T, s *Server, filename, content string) domain.IngestionReport {
	t.Helper()
	rec := serve(s, uploadRequest(t, "/api/ingest?sync=true", "file", map[string]string{filename: content}, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[domain.IngestionReport](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "secret")
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, "secret")

	t.Run("missing token", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/collections", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
		req.Header.Set("Authorization", "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, serve(s, req).Code)
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
		req.Header.Set("Authorization", "Bearer secret")
		assert.Equal(t, http.StatusOK, serve(s, req).Code)
	})
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	s := newTestServer(t, "")
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/collections", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestSyncThenSearch(t *testing.T) {
	s := newTestServer(t, "")

	report := ingestSync(t, s, "annual.txt", annualText)
	assert.Equal(t, "annual", report.Source)
	assert.Equal(t, "annual", report.Collection)
	assert.Equal(t, 2, report.PagesProcessed)
	assert.Positive(t, report.ChunksWritten)

	again := ingestSync(t, s, "annual.txt", annualText)
	assert.True(t, again.Skipped)

	rec := serve(s, jsonRequest(t, http.MethodPost, "/api/search", map[string]any{
		"query": "staff turnover",
		"top_k": 3,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Collections []string `json:"collections"`
		Results     []struct {
			Citation  domain.Citation `json:"citation"`
			Score     float64         `json:"score"`
			Formatted string          `json:"formatted"`
			Chunks    []domain.Match  `json:"chunks"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"annual"}, resp.Collections)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "annual", resp.Results[0].Citation.Source)
	assert.True(t, strings.HasPrefix(resp.Results[0].Formatted, "annual pp. 1, 2"), resp.Results[0].Formatted)
	require.NotEmpty(t, resp.Results[0].Chunks)
	var texts []string
	for _, c := range resp.Results[0].Chunks {
		assert.Equal(t, "annual", c.Source)
		texts = append(texts, c.Text)
	}
	assert.Contains(t, strings.Join(texts, " "), "Staff turnover fell sharply")
}

func TestIngestAsync(t *testing.T) {
	s := newTestServer(t, "")

	rec := serve(s, uploadRequest(t, "/api/ingest", "file",
		map[string]string{"annual.txt": annualText},
		map[string]string{"collection": "reports"}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode[map[string]any](t, rec)
	assert.Equal(t, "reports", accepted["collection"])
	pollURL, _ := accepted["poll_url"].(string)
	require.NotEmpty(t, pollURL)

	var snap pipeline.JobSnapshot
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, pollURL, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		snap = decode[pipeline.JobSnapshot](t, rec)
		if snap.Status.Done() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, pipeline.StatusCompleted, snap.Status, snap.Errors)
	require.NotNil(t, snap.Report)
	assert.Equal(t, "reports", snap.Report.Collection)
}

func TestIngestStatusUnknownJob(t *testing.T) {
	s := newTestServer(t, "")
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/ingest/nope/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIngestErrors(t *testing.T) {
	s := newTestServer(t, "")

	t.Run("unsupported extension", func(t *testing.T) {
		rec := serve(s, uploadRequest(t, "/api/ingest", "file", map[string]string{"data.exe": "x"}, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		rec := serve(s, uploadRequest(t, "/api/ingest", "file", nil, map[string]string{"source": "x"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty document", func(t *testing.T) {
		rec := serve(s, uploadRequest(t, "/api/ingest?sync=true", "file", map[string]string{"blank.txt": ""}, nil))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("corrupt pdf", func(t *testing.T) {
		rec := serve(s, uploadRequest(t, "/api/ingest?sync=true", "file", map[string]string{"broken.pdf": "not a pdf"}, nil))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("bad collection name", func(t *testing.T) {
		rec := serve(s, uploadRequest(t, "/api/ingest", "file",
			map[string]string{"a.txt": "text"}, map[string]string{"collection": "a/b"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestBatchIngest(t *testing.T) {
	s := newTestServer(t, "")
	rec := serve(s, uploadRequest(t, "/api/ingest/batch", "files", map[string]string{
		"one.txt":  "first document",
		"two.md":   "# Heading\n\nsecond document",
		"skip.exe": "binary",
	}, nil))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		Jobs []map[string]any `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 3)

	queued, failed := 0, 0
	for _, j := range resp.Jobs {
		if _, ok := j["job_id"]; ok {
			queued++
		}
		if _, ok := j["error"]; ok {
			failed++
		}
	}
	assert.Equal(t, 2, queued)
	assert.Equal(t, 1, failed)
}

func TestSearch(t *testing.T) {
	s := newTestServer(t, "")

	t.Run("empty store gives empty results", func(t *testing.T) {
		rec := serve(s, jsonRequest(t, http.MethodPost, "/api/search", map[string]any{"query": "anything"}))
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[map[string]any](t, rec)
		assert.Equal(t, []any{}, resp["results"])
		assert.EqualValues(t, 5, resp["top_k"])
	})

	t.Run("unknown collection gives empty results", func(t *testing.T) {
		rec := serve(s, jsonRequest(t, http.MethodPost, "/api/search", map[string]any{
			"query": "anything", "collections": []string{"missing"},
		}))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []any{}, decode[map[string]any](t, rec)["results"])
	})

	t.Run("negative top_k", func(t *testing.T) {
		rec := serve(s, jsonRequest(t, http.MethodPost, "/api/search", map[string]any{
			"query": "anything", "top_k": -1, "collections": []string{"missing"},
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader("{"))
		assert.Equal(t, http.StatusBadRequest, serve(s, req).Code)
	})
}

func TestCollections(t *testing.T) {
	s := newTestServer(t, "")
	ingestSync(t, s, "annual.txt", annualText)
	ingestSync(t, s, "memo.txt", "A short memo about parking.")

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/collections", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"collections":["annual","memo"]}`, rec.Body.String())

	rec = serve(s, httptest.NewRequest(http.MethodDelete, "/api/collections/memo", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/collections", nil))
	assert.JSONEq(t, `{"collections":["annual"]}`, rec.Body.String())
}

func TestEval(t *testing.T) {
	s := newTestServer(t, "")
	ingestSync(t, s, "annual.txt", annualText)

	rec := serve(s, jsonRequest(t, http.MethodPost, "/api/eval", map[string]any{
		"queries": []map[string]any{
			{"id": "turnover", "query_text": "staff turnover", "expected_source": "annual", "expected_pages": []int{2}},
			{"id": "other", "query": "staff turnover", "expected_source": "handbook", "expected_pages": []int{1}},
		},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Records []domain.EvalRecord `json:"records"`
		Summary struct {
			Queries   int     `json:"queries"`
			RecallAtK float64 `json:"recall_at_k"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 2)
	assert.True(t, resp.Records[0].HitAtK)
	assert.False(t, resp.Records[1].HitAtK)
	assert.Equal(t, 2, resp.Summary.Queries)
	assert.Equal(t, 0.5, resp.Summary.RecallAtK)

	t.Run("no queries", func(t *testing.T) {
		rec := serve(s, jsonRequest(t, http.MethodPost, "/api/eval", map[string]any{"queries": []any{}}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("query without pages", func(t *testing.T) {
		rec := serve(s, jsonRequest(t, http.MethodPost, "/api/eval", map[string]any{
			"queries": []map[string]any{{"query": "q", "expected_source": "annual"}},
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestEmbeddingStats(t *testing.T) {
	s := newTestServer(t, "")
	ingestSync(t, s, "annual.txt", annualText)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/stats/embedding", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Model string `json:"model"`
		Stats struct {
			Count int `json:"count"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hashing-v1", resp.Model)
	assert.Positive(t, resp.Stats.Count)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad k", domain.ErrConfiguration), http.StatusBadRequest},
		{fmt.Errorf("%w: empty", domain.ErrExtraction), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: timeout", domain.ErrEmbedding), http.StatusBadGateway},
		{fmt.Errorf("storing: %w", domain.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", sanitizeFilename("../../etc/report.pdf"))
	assert.Equal(t, "report.pdf", sanitizeFilename(`C:\docs\report.pdf`))
	assert.Equal(t, "unnamed", sanitizeFilename(""))
}
