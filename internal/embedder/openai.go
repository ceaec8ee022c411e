package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements rag.Embedder on the OpenAI (or Azure OpenAI)
// embeddings endpoint.
type OpenAIEmbedder struct {
	// client is the go-openai API client.
	client *openai.Client
	// backend is "openai" or "azure", used in Version.
	backend string
	// model is the embedding model or Azure deployment name.
	model string
	// dims is the requested output dimension.
	dims int
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API root. For Azure this is the resource endpoint.
	BaseURL string
	// APIKey authenticates requests.
	APIKey string
	// Model is the embedding model, or deployment name on Azure.
	Model string
	// Dimensions is the requested vector length.
	Dimensions int
	// Azure switches to Azure OpenAI authentication and URL layout.
	Azure bool
	// APIVersion is the Azure REST API version (Azure only).
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaultOpenAIDimensions
	}

	backend := "openai"
	var clientCfg openai.ClientConfig
	if cfg.Azure {
		backend = "azure"
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Model
		// Use the deployment name as-is; the default mapper strips dots.
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		backend: backend,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
	}
}

// Version identifies the backend, model and dimension.
func (e *OpenAIEmbedder) Version() string { return version(e.backend, e.model, e.dims) }

// Dimension returns the requested vector length.
func (e *OpenAIEmbedder) Dimension() int { return e.dims }

// Embed converts a batch of texts into their corresponding embeddings.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("%s embedder: request failed: %w", e.backend, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s embedder: expected %d embeddings, got %d", e.backend, len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%s embedder: embedding index %d out of range", e.backend, d.Index)
		}
		if len(d.Embedding) != e.dims {
			return nil, fmt.Errorf("%s embedder: embedding %d has %d dimensions, want %d", e.backend, d.Index, len(d.Embedding), e.dims)
		}
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		out[d.Index] = v
	}
	return out, nil
}
