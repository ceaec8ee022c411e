package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/54b3r/icrag-go/internal/corpus"
)

// clearEnv unsets every variable Load reads or writes, restoring them when
// the test ends, and points HOME at an empty directory.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"ICRAG_CONFIG", "OLLAMA_HOST", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY",
		"AZURE_OPENAI_ENDPOINT", "GOOGLE_API_KEY", "ARK_API_KEY",
	}
	for _, m := range envMapping {
		keys = append(keys, m.envKey)
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("HOME", t.TempDir())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)

	cfg, path, err := Load("/nonexistent/path/config.yaml", slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
	if cfg.Model.Provider != "ollama" || cfg.Model.Name != "llama3.1" {
		t.Errorf("model defaults: got %+v", cfg.Model)
	}
	if cfg.Store.Backend != StoreSQLite {
		t.Errorf("store backend: got %q", cfg.Store.Backend)
	}
	if cfg.Corpus.IndexDir != filepath.Join("data", "index") {
		t.Errorf("index dir: got %q", cfg.Corpus.IndexDir)
	}
	if len(cfg.Corpus.Sources) != len(corpus.All()) {
		t.Errorf("expected default sources, got %d", len(cfg.Corpus.Sources))
	}
	if cfg.ListenAddr() != "127.0.0.1:8080" {
		t.Errorf("listen addr: got %q", cfg.ListenAddr())
	}
	if cfg.Retrieval.TopK != DefaultTopK || cfg.Model.Retries != DefaultModelRetries {
		t.Errorf("retrieval/model defaults: %+v %+v", cfg.Retrieval, cfg.Model)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, `
model:
  provider: azure
  base_url: https://my-resource.openai.azure.com
  deployment: gpt-4o
  api_version: "2025-04-01-preview"
  max_tokens: 2048
  temperature: 0.3
  timeout: 45s
embedding:
  provider: ollama
  model: nomic-embed-text
  host: http://embed.internal:11434
store:
  backend: qdrant
  qdrant:
    host: qdrant.internal
    port: 6335
corpus:
  data_dir: /srv/constitution
  chunk_size: 800
  sources:
    - language: english
      file: coi.txt
      title: indian-constitution.pdf
    - language: Gujarathi
      file: ic-gujarati.txt
assistant:
  enabled: true
  assistant_id: asst_123
  poll_max: 3s
server:
  port: 9090
  rate_limit: 0.5
logging:
  level: debug
  format: text
`)

	cfg, loaded, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":           "azure",
		"MODEL_MAX_TOKENS":         "2048",
		"MODEL_TEMPERATURE":        "0.3",
		"MODEL_TIMEOUT":            "45s",
		"AZURE_OPENAI_DEPLOYMENT":  "gpt-4o",
		"AZURE_OPENAI_API_VERSION": "2025-04-01-preview",
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_ENDPOINT":       "http://embed.internal:11434",
		"ICRAG_STORE":              "qdrant",
		"QDRANT_PORT":              "6335",
		"ICRAG_DATA_DIR":           "/srv/constitution",
		"ICRAG_ASSISTANT_ENABLED":  "true",
		"ICRAG_ASSISTANT_POLL_MAX": "3s",
		"ICRAG_RATE_LIMIT":         "0.5",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}

	if cfg.Model.BaseURL != "https://my-resource.openai.azure.com" || cfg.Model.Timeout != 45*time.Second {
		t.Errorf("model: got %+v", cfg.Model)
	}
	if cfg.Store.Backend != StoreQdrant || cfg.Store.Qdrant.Host != "qdrant.internal" || cfg.Store.Qdrant.Port != 6335 {
		t.Errorf("store: got %+v", cfg.Store)
	}
	if cfg.Corpus.IndexDir != filepath.Join("/srv/constitution", "index") || cfg.Corpus.ChunkSize != 800 {
		t.Errorf("corpus: got %+v", cfg.Corpus)
	}
	if len(cfg.Corpus.Sources) != 2 || cfg.Corpus.Sources[0].Language != corpus.English || cfg.Corpus.Sources[1].Language != corpus.Gujarati {
		t.Errorf("sources not normalised: %+v", cfg.Corpus.Sources)
	}
	if !cfg.Assistant.Enabled || cfg.Assistant.ID != "asst_123" || cfg.Assistant.PollMax != 3*time.Second {
		t.Errorf("assistant: got %+v", cfg.Assistant)
	}
	if cfg.Assistant.PollInitial != DefaultPollInitial {
		t.Errorf("poll initial default: got %v", cfg.Assistant.PollInitial)
	}
	if cfg.ListenAddr() != "127.0.0.1:9090" || cfg.Server.RateLimit != 0.5 {
		t.Errorf("server: got %+v", cfg.Server)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, `
model:
  provider: ollama
  model: llama3.1
retrieval:
  top_k: 8
`)

	// Set env vars BEFORE loading; they must not be overwritten.
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("MODEL_NAME", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "sk-native")
	t.Setenv("ICRAG_TOP_K", "3")

	cfg, _, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("MODEL_PROVIDER"); got != "openai" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "openai", got)
	}
	if cfg.Model.Provider != "openai" || cfg.Model.Name != "gpt-4o-mini" {
		t.Errorf("model: got %+v", cfg.Model)
	}
	if cfg.Model.APIKey != "sk-native" {
		t.Errorf("api key should fall back to OPENAI_API_KEY, got %q", cfg.Model.APIKey)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("top_k: got %d, want 3", cfg.Retrieval.TopK)
	}
}

func TestLoad_ConfigEnvVar(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, "server:\n  port: 7070\n")
	t.Setenv("ICRAG_CONFIG", cfgPath)

	cfg, loaded, err := Load("", slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath || cfg.Server.Port != 7070 {
		t.Errorf("got path %q port %d", loaded, cfg.Server.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	cfgPath := writeConfig(t, "{{invalid yaml")
	if _, _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown store":        "store:\n  backend: chroma\n",
		"unknown language":     "corpus:\n  sources:\n    - language: Klingon\n      file: k.txt\n",
		"duplicate language":   "corpus:\n  sources:\n    - {language: Hindi, file: a.txt}\n    - {language: hindi, file: b.txt}\n",
		"assistant without id": "assistant:\n  enabled: true\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			if _, _, err := Load(writeConfig(t, content), slog.Default()); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestFromEnv_ProviderFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODEL_PROVIDER", "azure")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://x.openai.azure.com")
	t.Setenv("AZURE_OPENAI_API_KEY", "az-key")

	cfg := FromEnv()
	if cfg.Model.BaseURL != "https://x.openai.azure.com" || cfg.Model.APIKey != "az-key" {
		t.Errorf("azure fallbacks: got %+v", cfg.Model)
	}
	if cfg.Model.Name != "" {
		t.Errorf("azure has no default model name, got %q", cfg.Model.Name)
	}
	if cfg.Model.APIVersion != DefaultAzureAPIVersion {
		t.Errorf("api version: got %q", cfg.Model.APIVersion)
	}

	t.Setenv("MODEL_API_KEY", "explicit")
	if got := FromEnv().Model.APIKey; got != "explicit" {
		t.Errorf("MODEL_API_KEY should win over the native key, got %q", got)
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("ICRAG_TEST_DURATION", "250ms")
	t.Setenv("ICRAG_TEST_BAD", "soon")
	t.Setenv("ICRAG_TEST_BOOL", " TRUE ")
	if got := getEnvDuration("ICRAG_TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Errorf("getEnvDuration: got %v", got)
	}
	if got := getEnvDuration("ICRAG_TEST_BAD", time.Second); got != time.Second {
		t.Errorf("getEnvDuration fallback: got %v", got)
	}
	if !getEnvBool("ICRAG_TEST_BOOL") || getEnvBool("ICRAG_TEST_BAD") {
		t.Error("getEnvBool")
	}
	if durationStr(0) != "" || durationStr(3*time.Second) != "3s" {
		t.Error("durationStr")
	}
	if float64Str(0.5) != "0.5" || boolStr(false) != "" {
		t.Error("float64Str/boolStr")
	}
}
