// Package embedclient provides the embedding sub-service: a fixed-model
// HTTP client, a content-addressed cache, and a per-project daily
// token-budget counter.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/antigravity-dev/sentry/internal/herr"
)

// Dim is the fixed embedding dimensionality. Mixing dimensions is
// forbidden; callers that receive a vector of a different length must
// refuse to index it.
const Dim = 1536

// DefaultModel is the fixed model identifier the Memory Provider ships
// with.
const DefaultModel = "text-embedding-3-small"

// Client embeds text into fixed-dimension vectors.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// HTTPClient calls an OpenAI-compatible /embeddings endpoint.
type HTTPClient struct {
	Endpoint      string
	APIKey        string
	Model         string
	SingleTimeout time.Duration
	BatchTimeout  time.Duration
	HTTP          *http.Client
}

// NewHTTPClient constructs an HTTPClient with the fixed model and
// sensible default timeouts (5s single, 10s batch per the spec).
func NewHTTPClient(endpoint, apiKey string) *HTTPClient {
	return &HTTPClient{
		Endpoint:      endpoint,
		APIKey:        apiKey,
		Model:         DefaultModel,
		SingleTimeout: 5 * time.Second,
		BatchTimeout:  10 * time.Second,
		HTTP:          &http.Client{},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.call(ctx, []string{text}, c.timeout(c.SingleTimeout, 5*time.Second))
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, herr.Wrap(herr.ErrFatal, "embedclient", "embed", fmt.Errorf("expected 1 vector, got %d", len(vecs)))
	}
	return vecs[0], nil
}

func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.call(ctx, texts, c.timeout(c.BatchTimeout, 10*time.Second))
}

func (c *HTTPClient) timeout(configured, def time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	return def
}

func (c *HTTPClient) call(ctx context.Context, texts []string, timeout time.Duration) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := c.Model
	if model == "" {
		model = DefaultModel
	}

	body, err := json.Marshal(embeddingRequest{Model: model, Input: texts})
	if err != nil {
		return nil, herr.Wrap(herr.ErrFatal, "embedclient", "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, herr.Wrap(herr.ErrFatal, "embedclient", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTransient, "embedclient", "do request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, herr.Wrap(herr.ErrTransient, "embedclient", "response status", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, herr.Wrap(herr.ErrFatal, "embedclient", "auth", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, herr.Wrap(herr.ErrFatal, "embedclient", "response status", fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, herr.Wrap(herr.ErrTransient, "embedclient", "decode response", err)
	}

	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if len(d.Embedding) != Dim {
			return nil, herr.Wrap(herr.ErrFatal, "embedclient", "dimension check", fmt.Errorf("got %d dims, want %d", len(d.Embedding), Dim))
		}
		out[i] = d.Embedding
	}
	return out, nil
}
