package assistant

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ClientConfig selects the vendor endpoint for the Assistants API.
type ClientConfig struct {
	// APIKey authenticates requests.
	APIKey string
	// BaseURL is the Azure resource endpoint. Empty selects api.openai.com.
	BaseURL string
	// APIVersion is the Azure API version. Ignored for OpenAI.
	APIVersion string
}

// NewClient returns a go-openai client for cfg. A BaseURL selects Azure
// OpenAI.
func NewClient(cfg ClientConfig) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("assistant: api key is required")
	}
	if cfg.BaseURL == "" {
		return openai.NewClient(cfg.APIKey), nil
	}
	c := openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
	if cfg.APIVersion != "" {
		c.APIVersion = cfg.APIVersion
	}
	return openai.NewClientWithConfig(c), nil
}
