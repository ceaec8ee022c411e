package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/icrag-go/internal/answer"
	"github.com/54b3r/icrag-go/internal/assistant"
	"github.com/54b3r/icrag-go/internal/config"
	"github.com/54b3r/icrag-go/internal/embedder"
	"github.com/54b3r/icrag-go/internal/provider"
	"github.com/54b3r/icrag-go/internal/rag"
	"github.com/54b3r/icrag-go/internal/server"
	"github.com/54b3r/icrag-go/internal/store"
	"github.com/54b3r/icrag-go/internal/tracing"
)

// app bundles what the ask, serve, and mcp commands share.
type app struct {
	// service answers questions.
	service *answer.Service
	// store is the open index store.
	store rag.VectorStore
	// pingers probe the store and the completion backend.
	pingers []server.Pinger
	// close releases the store and flushes traces.
	close func()
}

// openStore opens the configured index store and its readiness probe.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (rag.VectorStore, server.Pinger, error) {
	switch cfg.Store.Backend {
	case config.StoreQdrant:
		q := cfg.Store.Qdrant
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:   q.Host,
			Port:   q.Port,
			APIKey: q.APIKey,
			UseTLS: q.TLS,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", q.Host, q.Port, err)
		}
		log.Info("qdrant store ready", slog.String("host", q.Host), slog.Int("port", q.Port))
		return qs, server.NewQdrantPinger(qs.Client()), nil
	default:
		s, err := store.OpenDir(cfg.Corpus.IndexDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open index: %w", err)
		}
		log.Info("sqlite store ready", slog.String("path", s.Name()))
		return s, server.NewPingFunc("sqlite", s.Ping), nil
	}
}

// newEmbedder runs the RAG pre-flight check and builds the env-configured
// embedder.
func newEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("version", emb.Version()))
	return emb, nil
}

// providerConfig maps the model section onto the chat provider config.
func providerConfig(cfg *config.Config) *provider.Config {
	m := cfg.Model
	return &provider.Config{
		Backend:         provider.Backend(strings.ToLower(m.Provider)),
		Model:           m.Name,
		BaseURL:         m.BaseURL,
		APIKey:          m.APIKey,
		AzureDeployment: m.Deployment,
		AzureAPIVersion: m.APIVersion,
		MaxTokens:       m.MaxTokens,
		Temperature:     m.Temperature,
	}
}

// answerConfig maps the model and retrieval sections onto the answer
// service config. A hosted assistant run may take up to its deadline, so
// the per-attempt timeout is raised to cover it.
func answerConfig(cfg *config.Config) *answer.Config {
	timeout := cfg.Model.Timeout
	if cfg.Assistant.Enabled && cfg.Assistant.Deadline > timeout {
		timeout = cfg.Assistant.Deadline
	}
	return &answer.Config{
		TopK:             cfg.Retrieval.TopK,
		MaxContextTokens: cfg.Retrieval.MaxContextTokens,
		MaxHistoryTokens: cfg.Retrieval.MaxHistoryTokens,
		MaxTokens:        cfg.Model.MaxTokens,
		Temperature:      cfg.Model.Temperature,
		Timeout:          timeout,
		MaxRetries:       cfg.Model.Retries,
	}
}

// assistantClientConfig maps the model credentials onto the Assistants API
// client. Only Azure uses a custom endpoint.
func assistantClientConfig(cfg *config.Config) assistant.ClientConfig {
	cc := assistant.ClientConfig{APIKey: cfg.Model.APIKey}
	if provider.Backend(strings.ToLower(cfg.Model.Provider)) == provider.BackendAzure {
		cc.BaseURL = cfg.Model.BaseURL
		cc.APIVersion = cfg.Model.APIVersion
	}
	return cc
}

// newCompleter builds the completion backend: the hosted assistant when
// enabled, otherwise the configured chat model. The returned pinger is nil
// when the backend has no zero-cost probe.
func newCompleter(ctx context.Context, cfg *config.Config, log *slog.Logger) (answer.Completer, server.Pinger, error) {
	if cfg.Assistant.Enabled {
		client, err := assistant.NewClient(assistantClientConfig(cfg))
		if err != nil {
			return nil, nil, err
		}
		c, err := assistant.NewCompleter(client, assistant.Config{
			AssistantID: cfg.Assistant.ID,
			Poller:      assistant.NewPoller(cfg.Assistant.PollInitial, cfg.Assistant.PollMax, cfg.Assistant.Deadline),
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("hosted assistant enabled", slog.String("assistant_id", cfg.Assistant.ID))
		return c, nil, nil
	}

	pc := providerConfig(cfg)
	chatModel, err := provider.New(ctx, pc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	c, err := answer.NewChatCompleter(chatModel)
	if err != nil {
		return nil, nil, err
	}
	log.Info("provider initialised", slog.String("provider", string(pc.Backend)), slog.String("model", pc.Model))

	var p server.Pinger
	if pc.Backend == provider.BackendOllama && pc.BaseURL != "" {
		p = server.NewHTTPPinger("ollama", strings.TrimRight(pc.BaseURL, "/")+"/api/tags", nil)
	}
	return c, p, nil
}

// setupTracing enables Langfuse when keys are configured and returns the
// flush function.
func setupTracing(cfg *config.Config, log *slog.Logger) func() {
	flush, ok := tracing.Setup(tracing.Config{
		Host:      cfg.Tracing.Host,
		PublicKey: cfg.Tracing.PublicKey,
		SecretKey: cfg.Tracing.SecretKey,
	})
	if ok {
		log.Info("langfuse tracing enabled")
	} else {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
	}
	return flush
}

// buildApp wires store, embedder, retriever, completer, and the answer
// service. Metrics are registered with reg. The caller must call close.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	flush := setupTracing(cfg, log)

	vs, storePinger, err := openStore(ctx, cfg, log)
	if err != nil {
		flush()
		return nil, err
	}
	fail := func(err error) (*app, error) {
		_ = vs.Close()
		flush()
		return nil, err
	}

	emb, err := newEmbedder(log)
	if err != nil {
		return fail(err)
	}
	index, err := rag.NewIndex(vs, emb)
	if err != nil {
		return fail(err)
	}
	completer, completerPinger, err := newCompleter(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	svc, err := answer.NewService(
		rag.NewRetriever(index, cfg.Retrieval.TopK),
		completer,
		vs,
		answerConfig(cfg),
		answer.NewMetrics(reg),
	)
	if err != nil {
		return fail(err)
	}

	pingers := []server.Pinger{storePinger}
	if completerPinger != nil {
		pingers = append(pingers, completerPinger)
	}
	return &app{
		service: svc,
		store:   vs,
		pingers: pingers,
		close: func() {
			if err := vs.Close(); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("store close failed", slog.Any("error", err))
			}
			flush()
		},
	}, nil
}
