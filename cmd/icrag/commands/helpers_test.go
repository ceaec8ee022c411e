package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/icrag-go/internal/config"
	"github.com/54b3r/icrag-go/internal/provider"
	"github.com/54b3r/icrag-go/internal/rag"
)

func TestProviderConfig_MapsModelSection(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Model: config.ModelConfig{
		Provider:    "Azure",
		Name:        "gpt-4o",
		BaseURL:     "https://example.openai.azure.com",
		APIKey:      "k",
		Deployment:  "prod",
		APIVersion:  "2024-06-01",
		MaxTokens:   512,
		Temperature: 0.2,
	}}
	pc := providerConfig(cfg)
	if pc.Backend != provider.BackendAzure {
		t.Errorf("Backend = %q, want %q", pc.Backend, provider.BackendAzure)
	}
	if pc.AzureDeployment != "prod" || pc.AzureAPIVersion != "2024-06-01" {
		t.Errorf("azure fields = %q/%q", pc.AzureDeployment, pc.AzureAPIVersion)
	}
	if pc.MaxTokens != 512 || pc.Temperature != 0.2 {
		t.Errorf("sampling = %d/%v", pc.MaxTokens, pc.Temperature)
	}
}

func TestAnswerConfig_AssistantDeadlineRaisesTimeout(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		enabled bool
		want    time.Duration
	}{
		{"chat model", false, 30 * time.Second},
		{"assistant", true, 2 * time.Minute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{
				Model:     config.ModelConfig{Timeout: 30 * time.Second},
				Assistant: config.AssistantConfig{Enabled: tc.enabled, Deadline: 2 * time.Minute},
			}
			if got := answerConfig(cfg).Timeout; got != tc.want {
				t.Errorf("Timeout = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAssistantClientConfig_AzureOnlyEndpoint(t *testing.T) {
	t.Parallel()
	tests := []struct {
		provider    string
		wantBaseURL string
	}{
		{"openai", ""},
		{"azure", "https://example.openai.azure.com"},
	}
	for _, tc := range tests {
		t.Run(tc.provider, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{Model: config.ModelConfig{
				Provider: tc.provider,
				BaseURL:  "https://example.openai.azure.com",
				APIKey:   "k",
			}}
			cc := assistantClientConfig(cfg)
			if cc.BaseURL != tc.wantBaseURL {
				t.Errorf("BaseURL = %q, want %q", cc.BaseURL, tc.wantBaseURL)
			}
			if cc.APIKey != "k" {
				t.Errorf("APIKey = %q, want k", cc.APIKey)
			}
		})
	}
}

func TestWriteCollections(t *testing.T) {
	t.Parallel()
	created := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	cols := []rag.Collection{
		{Name: "constitution_english", Language: "English", Count: 120, EmbedderVersion: "hash/fnv1a-v1@256", CreatedAt: created},
		{Name: "constitution_hindi", Language: "Hindi", Count: 80, EmbedderVersion: "ollama/nomic-embed-text@768", CreatedAt: created},
	}
	var buf bytes.Buffer
	if err := writeCollections(&buf, cols, "hash/fnv1a-v1@256"); err != nil {
		t.Fatalf("writeCollections: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Errorf("header = %q", lines[0])
	}
	if strings.Contains(lines[1], "(stale)") {
		t.Errorf("english row flagged stale: %q", lines[1])
	}
	if !strings.Contains(lines[2], "(stale)") {
		t.Errorf("hindi row not flagged stale: %q", lines[2])
	}
	if !strings.Contains(lines[1], "2026-01-26T00:00:00Z") {
		t.Errorf("english row missing timestamp: %q", lines[1])
	}
}

func TestWriteCollections_Empty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := writeCollections(&buf, nil, ""); err != nil {
		t.Fatalf("writeCollections: %v", err)
	}
	if !strings.Contains(buf.String(), "icrag ingest") {
		t.Errorf("output = %q", buf.String())
	}
}
