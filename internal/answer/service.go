package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/54b3r/icrag-go/internal/budget"
	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/logging"
	"github.com/54b3r/icrag-go/internal/rag"
)

// Sentinel errors returned by Service.Ask.
var (
	// ErrCompletion wraps every completion backend failure after retries.
	ErrCompletion = errors.New("answer: completion failed")
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("answer: question must not be empty")
)

// UserMessage is shown to end users in place of a completion error.
const UserMessage = "The assistant could not produce an answer right now. Please try again."

// Defaults applied by NewService.
const (
	DefaultTimeout      = 60 * time.Second
	DefaultMaxRetries   = 2
	DefaultRetryInitial = 500 * time.Millisecond
	DefaultRetryMax     = 5 * time.Second

	DefaultMaxHistoryTokens = 2000
)

// Retriever fetches grounding chunks for a question.
type Retriever interface {
	// Retrieve returns at most k chunks; k < 0 selects the default.
	Retrieve(ctx context.Context, question, language string, k int) rag.QueryResult
}

// CollectionLookup reports whether a language's collection has been built.
// rag.VectorStore satisfies it.
type CollectionLookup interface {
	// GetCollection returns the live collection or rag.ErrCollectionNotFound.
	GetCollection(ctx context.Context, name string) (*rag.Collection, error)
}

// Config holds the answer composition settings.
type Config struct {
	// TopK is the number of chunks retrieved per question. Zero or negative
	// selects the retriever default.
	TopK int

	// MaxContextTokens bounds the retrieved context.
	// Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int

	// MaxHistoryTokens bounds the prior turns sent with a question.
	// Defaults to DefaultMaxHistoryTokens.
	MaxHistoryTokens int

	// MaxTokens caps the answer length. Zero leaves the backend default.
	MaxTokens int

	// Temperature is the sampling temperature. Zero leaves the backend default.
	Temperature float32

	// Timeout bounds each completion attempt. Defaults to 60s.
	Timeout time.Duration

	// MaxRetries is the number of retries after a failed attempt.
	// Defaults to 2. Negative disables retries.
	MaxRetries int

	// RetryInitial is the first backoff interval. Defaults to 500ms.
	RetryInitial time.Duration

	// RetryMax caps the backoff interval. Defaults to 5s.
	RetryMax time.Duration
}

// Answer is a composed, cited answer.
type Answer struct {
	// Question echoes the question asked.
	Question string
	// Language is the resolved language, or the caller's input when unsupported.
	Language string
	// Supported is false when the language cannot be answered.
	Supported bool
	// Body is the answer text with footnote markers, without the citations block.
	Body string
	// Text is Body followed by the citations block.
	Text string
	// Citations are ordered by marker.
	Citations []Citation
	// Collection is the collection that was searched.
	Collection string
	// Sources are the chunks supplied as context.
	Sources []rag.Hit
}

// Service answers questions from retrieved constitution passages.
type Service struct {
	// retriever resolves a language and fetches chunks.
	retriever Retriever
	// completer produces the answer text.
	completer Completer
	// lookup detects languages whose collection was never built. May be nil.
	lookup CollectionLookup
	// cfg holds the resolved configuration.
	cfg *Config
	// metrics records latency and retrieval counters. May be nil.
	metrics *Metrics
}

// NewService constructs a Service. lookup and metrics may be nil.
func NewService(r Retriever, c Completer, lookup CollectionLookup, cfg *Config, metrics *Metrics) (*Service, error) {
	if r == nil {
		return nil, fmt.Errorf("answer: retriever must not be nil")
	}
	if c == nil {
		return nil, fmt.Errorf("answer: completer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = -1
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if cfg.MaxHistoryTokens <= 0 {
		cfg.MaxHistoryTokens = DefaultMaxHistoryTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = DefaultRetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = DefaultRetryMax
	}
	return &Service{retriever: r, completer: c, lookup: lookup, cfg: cfg, metrics: metrics}, nil
}

// Ask answers question in language using conv as prior context. conv may be
// nil. On success the turn is appended to conv.
//
// Unsupported languages yield a localised Answer with Supported=false and no
// error. Completion failures are returned wrapped in ErrCompletion.
func (s *Service) Ask(ctx context.Context, conv *Conversation, question, language string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	log := logging.FromContext(ctx).With(slog.String("language", language))

	lang, ok := corpus.Normalize(language)
	if !ok || !s.built(ctx, lang) {
		log.Info("answer: language not supported")
		s.metrics.observeAnswer(metricLanguage(lang, ok), "unsupported")
		msg := NotSupportedMessage(language)
		return &Answer{Question: question, Language: language, Body: msg, Text: msg}, nil
	}

	result := s.retriever.Retrieve(ctx, question, string(lang), s.cfg.TopK)
	hits := budget.FitChunks(result.Hits, s.cfg.MaxContextTokens)
	s.metrics.observeHits(len(hits))
	log.Debug("answer: retrieved context",
		slog.String("collection", result.Collection),
		slog.Int("chunks", len(hits)),
		slog.Int("dropped", len(result.Hits)-len(hits)),
	)

	sources := make([]rag.Chunk, len(hits))
	for i, h := range hits {
		sources[i] = h.Chunk
	}
	req := Request{
		SystemInstruction: SystemInstruction(lang),
		ContextText:       ContextText(sources),
		Question:          question,
		Language:          lang,
		Sources:           sources,
		MaxTokens:         s.cfg.MaxTokens,
		Temperature:       s.cfg.Temperature,
	}
	req.History = conv.Within(s.cfg.MaxHistoryTokens)

	completion, err := s.complete(ctx, log, req)
	if err != nil {
		s.metrics.observeAnswer(string(lang), "error")
		return nil, err
	}

	body, citations := Resolve(completion.Text, completion.Annotations)
	if conv != nil {
		conv.Append(Turn{Question: question, Answer: body})
	}
	s.metrics.observeAnswer(string(lang), "ok")
	return &Answer{
		Question:   question,
		Language:   string(lang),
		Supported:  true,
		Body:       body,
		Text:       Compose(body, citations),
		Citations:  citations,
		Collection: result.Collection,
		Sources:    hits,
	}, nil
}

// built reports whether lang has a live collection. Without a lookup every
// supported language is assumed built.
func (s *Service) built(ctx context.Context, lang corpus.Language) bool {
	if s.lookup == nil {
		return true
	}
	_, err := s.lookup.GetCollection(ctx, corpus.CollectionName(lang))
	if err == nil {
		return true
	}
	if !errors.Is(err, rag.ErrCollectionNotFound) {
		// Store trouble is not a language problem; let retrieval degrade.
		logging.FromContext(ctx).Warn("answer: collection lookup failed", slog.Any("error", err))
		return true
	}
	return false
}

// complete calls the completer with a per-attempt timeout and bounded
// exponential backoff between attempts.
func (s *Service) complete(ctx context.Context, log *slog.Logger, req Request) (Completion, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryInitial
	bo.MaxInterval = s.cfg.RetryMax
	bo.MaxElapsedTime = 0

	began := time.Now()
	attempt := 0
	var out Completion
	op := func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		c, err := s.completer.Complete(actx, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			log.Warn("answer: completion attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))
			return err
		}
		out = c
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.MaxRetries)), ctx) //nolint:gosec // MaxRetries >= 0

	if err := backoff.Retry(op, policy); err != nil {
		s.metrics.observeCompletion("error", time.Since(began).Seconds())
		log.Error("answer: completion failed", slog.Int("attempts", attempt), slog.Any("error", err))
		return Completion{}, fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	s.metrics.observeCompletion("ok", time.Since(began).Seconds())
	return out, nil
}

// metricLanguage bounds the language label to the supported set.
func metricLanguage(lang corpus.Language, ok bool) string {
	if !ok {
		return "other"
	}
	return string(lang)
}
