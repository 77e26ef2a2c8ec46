// Package remote embeds text through an OpenAI-compatible or Ollama HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/citewise/internal/embedding"
	"golang.org/x/time/rate"
)

// Client calls a remote embeddings endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	dims       int
	httpClient *http.Client
	limiter    *rate.Limiter
	backoff    func(attempt int) time.Duration
}

// Config configures a Client. RequestsPerSecond <= 0 disables throttling.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Dims              int
	RequestsPerSecond float64
	Timeout           time.Duration
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	c := &Client{
		endpoint:   endpointFor(cfg.BaseURL),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dims:       cfg.Dims,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    embedding.Backoff,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// endpointFor accepts either a base URL or a full embeddings endpoint.
func endpointFor(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/embeddings") || strings.HasSuffix(base, "/api/embed") {
		return base
	}
	return base + "/embeddings"
}

func (c *Client) Dimensions() int { return c.dims }

func (c *Client) Model() string { return c.model }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse covers the OpenAI shape ("data") and both Ollama shapes
// ("embeddings" from /api/embed, "embedding" from the legacy endpoint).
type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Embeddings [][]float32 `json:"embeddings"`
	Embedding  []float32   `json:"embedding"`
	Error      any         `json:"error"`
}

// Embed sends texts in one request, retrying transient failures.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for attempt := 0; ; attempt++ {
		vecs, err := c.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if !embedding.IsRetryable(err) || attempt >= embedding.MaxRetries {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embeddings api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &embedding.RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var out embedResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("embeddings api error: %v", out.Error)
	}

	var vecs [][]float32
	switch {
	case len(out.Data) > 0:
		sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
		vecs = make([][]float32, len(out.Data))
		for i, d := range out.Data {
			vecs[i] = d.Embedding
		}
	case len(out.Embeddings) > 0:
		vecs = out.Embeddings
	case len(out.Embedding) > 0 && len(texts) == 1:
		vecs = [][]float32{out.Embedding}
	default:
		return nil, fmt.Errorf("no embeddings in response")
	}

	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
