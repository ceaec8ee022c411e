// Package provider constructs the chat model that answers questions from
// retrieved constitution passages. Supported backends: Ollama, OpenAI,
// Azure OpenAI, Volcengine Ark and Google Gemini.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Backends lists every backend in documentation order.
var Backends = []Backend{BackendOllama, BackendOpenAI, BackendAzure, BackendArk, BackendGemini}

// Config holds the chat model settings resolved by the config package.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name (e.g. "gpt-4o", "llama3.1"). For Azure it is
	// ignored in favour of AzureDeployment.
	Model string

	// BaseURL overrides the default API endpoint. Required for Azure.
	BaseURL string

	// APIKey is the authentication credential for the selected provider.
	APIKey string

	// AzureDeployment is the Azure OpenAI deployment name (Azure only).
	AzureDeployment string

	// AzureAPIVersion is the Azure OpenAI REST API version (Azure only).
	AzureAPIVersion string

	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Validate reports the first missing setting for the selected backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Model == "" {
			return fmt.Errorf("provider: MODEL_NAME is required for the ollama backend")
		}
	case BackendOpenAI, BackendArk, BackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("provider: MODEL_API_KEY is required for the %s backend", c.Backend)
		}
		if c.Model == "" {
			return fmt.Errorf("provider: MODEL_NAME is required for the %s backend", c.Backend)
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("provider: MODEL_API_KEY is required for the azure backend")
		}
		if c.BaseURL == "" {
			return fmt.Errorf("provider: MODEL_BASE_URL (Azure endpoint) is required for the azure backend")
		}
		if c.AzureDeployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for the azure backend")
		}
	default:
		names := make([]string, len(Backends))
		for i, b := range Backends {
			names[i] = string(b)
		}
		return fmt.Errorf("provider: unknown backend %q, valid values: %s", c.Backend, strings.Join(names, ", "))
	}
	return nil
}

// isAzureReasoningModel reports whether an Azure deployment serves an
// o-series or codex reasoning model. Those reject temperature and
// max_tokens, so the request leaves both unset.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
