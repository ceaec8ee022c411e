package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama request limits.
const (
	// defaultOllamaBatch is the most texts sent in one /api/embed call.
	defaultOllamaBatch = 32

	defaultOllamaTimeout = 60 * time.Second

	// maxErrorBody bounds how much of a failed response is read for its message.
	maxErrorBody = 4 << 10
)

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (default: http://localhost:11434).
	Host string
	// Model is the embedding model name (default: nomic-embed-text).
	Model string
	// Dimensions is the model's output size. Defaults to 768.
	Dimensions int
	// Timeout bounds each /api/embed call. Defaults to 60s.
	Timeout time.Duration
	// BatchSize caps texts per call. Defaults to 32.
	BatchSize int
}

// OllamaEmbedder embeds text with a local Ollama server. Inputs longer than
// the model context are truncated server side rather than rejected, which
// matters for dense Indic pages. Safe for concurrent use.
type OllamaEmbedder struct {
	endpoint string
	model    string
	dims     int
	batch    int
	client   *http.Client
}

// NewOllamaEmbedder constructs an OllamaEmbedder, defaulting zero fields.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	c := *cfg
	if c.Host == "" {
		c.Host = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = defaultOllamaModel
	}
	if c.Dimensions <= 0 {
		c.Dimensions = defaultOllamaDimensions
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultOllamaTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultOllamaBatch
	}
	return &OllamaEmbedder{
		endpoint: strings.TrimRight(c.Host, "/") + "/api/embed",
		model:    c.Model,
		dims:     c.Dimensions,
		batch:    c.BatchSize,
		client:   &http.Client{Timeout: c.Timeout},
	}
}

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Version identifies the model and dimension.
func (e *OllamaEmbedder) Version() string { return version("ollama", e.model, e.dims) }

// Dimension returns the configured vector length.
func (e *OllamaEmbedder) Dimension() int { return e.dims }

// Embed converts texts into vectors parallel to the input, issuing one call
// per BatchSize texts.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batch {
		end := min(start+e.batch, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("ollama embedder: texts %d-%d: %w", start, end-1, err)
		}
		out = append(out, vecs...)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// embedBatch performs a single /api/embed call and validates its shape.
func (e *OllamaEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	for i, v := range result.Embeddings {
		if len(v) != e.dims {
			return nil, fmt.Errorf("embedding %d has %d dimensions, want %d (set EMBEDDING_DIMENSIONS)", i, len(v), e.dims)
		}
	}
	return result.Embeddings, nil
}

// statusError turns a non-2xx response into an error, preferring Ollama's
// JSON error message over the bare status.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var e ollamaEmbedResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("HTTP %d", resp.StatusCode)
}
