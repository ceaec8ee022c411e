// Package config provides YAML-based configuration for icrag.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. ICRAG_CONFIG environment variable
//  3. ~/.icrag/config.yaml
//  4. ./icrag.yaml
//
// Scalar YAML values are exported as environment variables that are not
// already set, so the embedder, logging and tracing packages, which read the
// environment directly, see the same settings. The corpus source table only
// exists in YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/54b3r/icrag-go/internal/corpus"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreQdrant = "qdrant"
)

// Defaults applied when neither the file nor the environment sets a value.
const (
	DefaultProvider         = "ollama"
	DefaultMaxTokens        = 1024
	DefaultTemperature      = 0.2
	DefaultModelTimeout     = 60 * time.Second
	DefaultModelRetries     = 2
	DefaultAzureAPIVersion  = "2024-05-01-preview"
	DefaultQdrantHost       = "localhost"
	DefaultQdrantPort       = 6334
	DefaultChunkSize        = 1000
	DefaultBatchSize        = 64
	DefaultTopK             = 5
	DefaultMaxContextTokens = 6000
	DefaultServerHost       = "127.0.0.1"
	DefaultServerPort       = 8080
	DefaultRateLimit        = 2.0
	DefaultRateBurst        = 5
	DefaultPollInitial      = 500 * time.Millisecond
	DefaultPollMax          = 5 * time.Second
	DefaultAssistantTimeout = 2 * time.Minute
)

// defaultModels is the model used per chat backend when none is configured.
var defaultModels = map[string]string{
	"ollama": "llama3.1",
	"openai": "gpt-4o",
	"gemini": "gemini-1.5-pro",
}

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the chat model that composes answers.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding backend shared by ingestion and retrieval.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Store configures the index store backend.
	Store StoreConfig `yaml:"store"`

	// Corpus configures the source documents and ingestion.
	Corpus CorpusConfig `yaml:"corpus"`

	// Retrieval configures question answering limits.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Assistant configures the hosted assistant completion path.
	Assistant AssistantConfig `yaml:"assistant"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider string `yaml:"provider"`
	// Name is the model name. Ignored for azure, which uses Deployment.
	Name string `yaml:"model"`
	// BaseURL overrides the API endpoint. Required for azure.
	BaseURL string `yaml:"base_url"`
	// APIKey is the provider API key. Prefer env var MODEL_API_KEY.
	APIKey string `yaml:"api_key"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
	// MaxTokens is the maximum number of tokens in the answer.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
	// Timeout bounds one completion attempt.
	Timeout time.Duration `yaml:"timeout"`
	// Retries is the number of retries after a failed completion.
	Retries int `yaml:"retries"`
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	// Provider selects the backend: ollama, openai, azure, hash.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Host is the embedding API endpoint.
	Host string `yaml:"host"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
}

// StoreConfig holds index store settings.
type StoreConfig struct {
	// Backend is sqlite or qdrant.
	Backend string `yaml:"backend"`
	// Qdrant holds the Qdrant connection, used when Backend is qdrant.
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// CorpusConfig holds the source documents and ingestion settings.
type CorpusConfig struct {
	// DataDir is the directory source documents are read from.
	DataDir string `yaml:"data_dir"`
	// IndexDir is the SQLite index directory. Defaults to <data_dir>/index.
	IndexDir string `yaml:"index_dir"`
	// ChunkSize is the chunk size limit in characters.
	ChunkSize int `yaml:"chunk_size"`
	// BatchSize is the number of chunks embedded and stored per call.
	BatchSize int `yaml:"batch_size"`
	// Sources maps each language to its document. Defaults to
	// corpus.DefaultSources.
	Sources []corpus.Source `yaml:"sources"`
}

// RetrievalConfig holds question answering limits.
type RetrievalConfig struct {
	// TopK is the number of chunks retrieved per question.
	TopK int `yaml:"top_k"`
	// MaxContextTokens bounds the retrieved context sent to the model.
	MaxContextTokens int `yaml:"max_context_tokens"`
	// MaxHistoryTokens bounds the prior turns sent to the model.
	MaxHistoryTokens int `yaml:"max_history_tokens"`
}

// AssistantConfig holds hosted assistant settings. The assistant reuses the
// model section's api_key, and base_url and api_version for Azure.
type AssistantConfig struct {
	// Enabled selects the hosted assistant instead of the chat model.
	Enabled bool `yaml:"enabled"`
	// ID is the assistant identifier.
	ID string `yaml:"assistant_id"`
	// PollInitial is the first wait between run status polls.
	PollInitial time.Duration `yaml:"poll_initial"`
	// PollMax caps the wait between polls.
	PollMax time.Duration `yaml:"poll_max"`
	// Deadline bounds a whole run.
	Deadline time.Duration `yaml:"deadline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// RateLimit is the sustained per-client request rate (requests/second).
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the per-client burst size.
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_NAME", func(c *Config) string { return c.Model.Name }},
	{"MODEL_BASE_URL", func(c *Config) string { return c.Model.BaseURL }},
	{"MODEL_API_KEY", func(c *Config) string { return c.Model.APIKey }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.APIVersion }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"MODEL_TIMEOUT", func(c *Config) string { return durationStr(c.Model.Timeout) }},
	{"MODEL_RETRIES", func(c *Config) string { return intStr(c.Model.Retries) }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Host }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"ICRAG_STORE", func(c *Config) string { return c.Store.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Store.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Store.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Store.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Store.Qdrant.TLS) }},
	{"ICRAG_DATA_DIR", func(c *Config) string { return c.Corpus.DataDir }},
	{"ICRAG_INDEX_DIR", func(c *Config) string { return c.Corpus.IndexDir }},
	{"ICRAG_CHUNK_SIZE", func(c *Config) string { return intStr(c.Corpus.ChunkSize) }},
	{"ICRAG_BATCH_SIZE", func(c *Config) string { return intStr(c.Corpus.BatchSize) }},
	{"ICRAG_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"ICRAG_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Retrieval.MaxContextTokens) }},
	{"ICRAG_MAX_HISTORY_TOKENS", func(c *Config) string { return intStr(c.Retrieval.MaxHistoryTokens) }},
	{"ICRAG_ASSISTANT_ENABLED", func(c *Config) string { return boolStr(c.Assistant.Enabled) }},
	{"ICRAG_ASSISTANT_ID", func(c *Config) string { return c.Assistant.ID }},
	{"ICRAG_ASSISTANT_POLL_INITIAL", func(c *Config) string { return durationStr(c.Assistant.PollInitial) }},
	{"ICRAG_ASSISTANT_POLL_MAX", func(c *Config) string { return durationStr(c.Assistant.PollMax) }},
	{"ICRAG_ASSISTANT_DEADLINE", func(c *Config) string { return durationStr(c.Assistant.Deadline) }},
	{"ICRAG_HOST", func(c *Config) string { return c.Server.Host }},
	{"ICRAG_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"ICRAG_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"ICRAG_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load resolves the config file, applies its non-empty values as
// environment variables that are not already set, and returns the effective
// configuration together with the path that was loaded (empty when no file
// was found).
func Load(explicitPath string, log *slog.Logger) (*Config, string, error) {
	var file Config
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, "", fmt.Errorf("config: failed to parse %s: %w", path, err)
		}

		applied := 0
		for _, m := range envMapping {
			yamlVal := m.value(&file)
			if yamlVal == "" {
				continue
			}
			if os.Getenv(m.envKey) != "" {
				continue // env var already set; do not override
			}
			if err := os.Setenv(m.envKey, yamlVal); err != nil {
				return nil, "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
			}
			applied++
		}
		log.Info("config: loaded YAML config",
			slog.String("path", path),
			slog.Int("keys_applied", applied),
		)
	}

	cfg := FromEnv()
	cfg.Corpus.Sources = file.Corpus.Sources
	if len(cfg.Corpus.Sources) == 0 {
		cfg.Corpus.Sources = corpus.DefaultSources()
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// FromEnv builds a Config from environment variables and defaults. Corpus
// sources are left empty.
func FromEnv() *Config {
	provider := getEnvOrDefault("MODEL_PROVIDER", DefaultProvider)
	cfg := &Config{
		Model: ModelConfig{
			Provider:    provider,
			Name:        getEnvOrDefault("MODEL_NAME", defaultModels[provider]),
			BaseURL:     firstEnv("MODEL_BASE_URL", baseURLFallback(provider)),
			APIKey:      firstEnv("MODEL_API_KEY", apiKeyFallback(provider)),
			Deployment:  os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion:  getEnvOrDefault("AZURE_OPENAI_API_VERSION", DefaultAzureAPIVersion),
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", DefaultMaxTokens),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", DefaultTemperature),
			Timeout:     getEnvDuration("MODEL_TIMEOUT", DefaultModelTimeout),
			Retries:     getEnvInt("MODEL_RETRIES", DefaultModelRetries),
		},
		Embedding: EmbeddingConfig{
			Provider:   os.Getenv("EMBEDDING_PROVIDER"),
			Model:      os.Getenv("EMBEDDING_MODEL"),
			Host:       os.Getenv("EMBEDDING_ENDPOINT"),
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnvOrDefault("ICRAG_STORE", StoreSQLite)),
			Qdrant: QdrantConfig{
				Host:   getEnvOrDefault("QDRANT_HOST", DefaultQdrantHost),
				Port:   getEnvInt("QDRANT_PORT", DefaultQdrantPort),
				APIKey: os.Getenv("QDRANT_API_KEY"),
				TLS:    getEnvBool("QDRANT_TLS"),
			},
		},
		Corpus: CorpusConfig{
			DataDir:   getEnvOrDefault("ICRAG_DATA_DIR", corpus.DefaultDataDir),
			IndexDir:  os.Getenv("ICRAG_INDEX_DIR"),
			ChunkSize: getEnvInt("ICRAG_CHUNK_SIZE", DefaultChunkSize),
			BatchSize: getEnvInt("ICRAG_BATCH_SIZE", DefaultBatchSize),
		},
		Retrieval: RetrievalConfig{
			TopK:             getEnvInt("ICRAG_TOP_K", DefaultTopK),
			MaxContextTokens: getEnvInt("ICRAG_MAX_CONTEXT_TOKENS", DefaultMaxContextTokens),
			MaxHistoryTokens: getEnvInt("ICRAG_MAX_HISTORY_TOKENS", 0),
		},
		Assistant: AssistantConfig{
			Enabled:     getEnvBool("ICRAG_ASSISTANT_ENABLED"),
			ID:          os.Getenv("ICRAG_ASSISTANT_ID"),
			PollInitial: getEnvDuration("ICRAG_ASSISTANT_POLL_INITIAL", DefaultPollInitial),
			PollMax:     getEnvDuration("ICRAG_ASSISTANT_POLL_MAX", DefaultPollMax),
			Deadline:    getEnvDuration("ICRAG_ASSISTANT_DEADLINE", DefaultAssistantTimeout),
		},
		Server: ServerConfig{
			Host:      getEnvOrDefault("ICRAG_HOST", DefaultServerHost),
			Port:      getEnvInt("ICRAG_PORT", DefaultServerPort),
			RateLimit: getEnvFloat64("ICRAG_RATE_LIMIT", DefaultRateLimit),
			RateBurst: getEnvInt("ICRAG_RATE_BURST", DefaultRateBurst),
		},
		Logging: LoggingConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
		Tracing: TracingConfig{
			PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
			SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
			Host:      os.Getenv("LANGFUSE_HOST"),
		},
	}
	if cfg.Corpus.IndexDir == "" {
		cfg.Corpus.IndexDir = filepath.Join(cfg.Corpus.DataDir, "index")
	}
	return cfg
}

// Validate checks the settings that have a closed set of values and
// normalises the corpus sources in place.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreSQLite, StoreQdrant:
	default:
		return fmt.Errorf("config: unknown store backend %q, valid values: sqlite, qdrant", c.Store.Backend)
	}
	if c.Assistant.Enabled && c.Assistant.ID == "" {
		return fmt.Errorf("config: ICRAG_ASSISTANT_ID is required when the assistant is enabled")
	}
	if err := corpus.ValidateSources(c.Corpus.Sources); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ListenAddr returns the server bind address as host:port.
func (c *Config) ListenAddr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// baseURLFallback names the provider-native endpoint variable, if any.
func baseURLFallback(provider string) string {
	switch provider {
	case "ollama":
		return "OLLAMA_HOST"
	case "azure":
		return "AZURE_OPENAI_ENDPOINT"
	}
	return ""
}

// apiKeyFallback names the provider-native credential variable, if any.
func apiKeyFallback(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "azure":
		return "AZURE_OPENAI_API_KEY"
	case "gemini":
		return "GOOGLE_API_KEY"
	case "ark":
		return "ARK_API_KEY"
	}
	return ""
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("ICRAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".icrag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("icrag.yaml"); err == nil {
		return "icrag.yaml"
	}

	return ""
}
