package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/citewise/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := New(Config{BaseURL: url, APIKey: "k", Model: "test-model", Dims: 2})
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c
}

func TestClient_OpenAIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req embedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)

		// Out of order on purpose; the client sorts by index.
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	vecs, err := newTestClient(srv.URL+"/v1").Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestClient_OllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		w.Write([]byte(`{"model":"nomic","embeddings":[[0.5,0.5]]}`))
	}))
	defer srv.Close()

	vecs, err := newTestClient(srv.URL+"/api/embed").Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5}}, vecs)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
	}))
	defer srv.Close()

	vecs, err := newTestClient(srv.URL).Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}}, vecs)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, embedding.IsRetryable(err))
	assert.Equal(t, int32(embedding.MaxRetries+1), calls.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.False(t, embedding.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestEndpointFor(t *testing.T) {
	assert.Equal(t, "http://x/v1/embeddings", endpointFor("http://x/v1/"))
	assert.Equal(t, "http://x/api/embed", endpointFor("http://x/api/embed"))
	assert.Equal(t, "http://x/v1/embeddings", endpointFor("http://x/v1/embeddings"))
}
