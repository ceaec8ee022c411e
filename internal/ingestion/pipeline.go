// Package ingestion implements the corpus ingestion pipeline. For each
// configured language it loads the source document, chunks it, embeds the
// chunks and writes them into a fresh shadow collection that is published
// only once every batch has been stored.
// This pipeline is invoked by the `icrag ingest` CLI command.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/icrag-go/internal/chunker"
	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/logging"
	"github.com/54b3r/icrag-go/internal/rag"
)

// Skip reasons recorded on a Report.
const (
	ReasonMissingSource = "source file missing"
	ReasonEmptyDocument = "no extractable text"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// DataDir is the directory relative source paths are resolved against.
	// Defaults to corpus.DefaultDataDir.
	DataDir string

	// ChunkSize is the chunk size limit in characters.
	// Defaults to chunker.DefaultMaxChars if zero.
	ChunkSize int

	// BatchSize is the number of chunks embedded and stored per call.
	// Defaults to rag.DefaultBatchSize if zero.
	BatchSize int
}

// Report is the outcome of ingesting one language.
type Report struct {
	// Language is the language that was ingested.
	Language corpus.Language
	// Collection is the logical collection name.
	Collection string
	// Source is the resolved document path.
	Source string
	// ChunksWritten is the number of chunks published. Zero on skip or error.
	ChunksWritten int
	// Skipped is true when the language was skipped without error.
	Skipped bool
	// Reason explains a skip.
	Reason string
	// Err is the failure, if any. The previous live collection, if one
	// existed, is still serving.
	Err error
	// Duration is the wall time spent on the language.
	Duration time.Duration
}

// Summary aggregates the reports of one ingestion run.
type Summary struct {
	// Reports holds one report per source, in input order.
	Reports []Report
	// Written is the number of languages published.
	Written int
	// Skipped is the number of languages skipped.
	Skipped int
	// Failed is the number of languages that errored.
	Failed int
}

// OK reports whether no language failed.
func (s Summary) OK() bool { return s.Failed == 0 }

// Pipeline orchestrates the load → chunk → embed → store → publish flow for
// a set of corpus sources.
type Pipeline struct {
	// embedder converts chunk text into vectors.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// metrics records ingestion counters. May be nil.
	metrics *Metrics
}

// NewPipeline constructs a Pipeline from the provided dependencies and
// config. metrics may be nil.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config, metrics *Metrics) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.DataDir == "" {
		cfg.DataDir = corpus.DefaultDataDir
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultMaxChars
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = rag.DefaultBatchSize
	}
	return &Pipeline{embedder: embedder, store: store, cfg: cfg, metrics: metrics}, nil
}

// IngestAll ingests every source sequentially. A failure in one language is
// recorded and the run continues with the next.
func (p *Pipeline) IngestAll(ctx context.Context, sources []corpus.Source) Summary {
	var sum Summary
	for _, src := range sources {
		if ctx.Err() != nil {
			sum.Reports = append(sum.Reports, Report{
				Language:   src.Language,
				Collection: corpus.CollectionName(src.Language),
				Source:     src.Path(p.cfg.DataDir),
				Err:        fmt.Errorf("ingestion: cancelled: %w", ctx.Err()),
			})
			sum.Failed++
			continue
		}
		r := p.IngestOne(ctx, src)
		sum.Reports = append(sum.Reports, r)
		switch {
		case r.Err != nil:
			sum.Failed++
		case r.Skipped:
			sum.Skipped++
		default:
			sum.Written++
		}
	}
	return sum
}

// IngestOne rebuilds the collection for one source. The new generation is
// published only after all chunks are stored; on any failure it is
// discarded and the previous generation stays live.
func (p *Pipeline) IngestOne(ctx context.Context, src corpus.Source) (r Report) {
	began := time.Now()
	r = Report{
		Language:   src.Language,
		Collection: corpus.CollectionName(src.Language),
		Source:     src.Path(p.cfg.DataDir),
	}
	log := logging.FromContext(ctx).With(
		slog.String("language", string(src.Language)),
		slog.String("collection", r.Collection),
	)
	defer func() {
		r.Duration = time.Since(began)
		p.metrics.observe(r)
	}()

	pages, err := chunker.LoadPages(r.Source)
	if err != nil {
		if errors.Is(err, chunker.ErrNotFound) {
			log.Warn("ingestion: source file missing, skipping", slog.String("source", r.Source))
			r.Skipped, r.Reason = true, ReasonMissingSource
			return r
		}
		r.Err = fmt.Errorf("ingestion: load %s: %w", r.Source, err)
		log.Error("ingestion: load failed", slog.Any("error", err))
		return r
	}

	chunks := chunker.Split(pages, src.Label(), p.cfg.ChunkSize)
	if len(chunks) == 0 {
		log.Warn("ingestion: no text extracted, skipping", slog.String("source", r.Source))
		r.Skipped, r.Reason = true, ReasonEmptyDocument
		return r
	}
	for i := range chunks {
		chunks[i].Metadata[chunker.MetaLanguage] = string(src.Language)
	}

	n, err := p.rebuild(ctx, log, src.Language, chunks)
	if err != nil {
		r.Err = err
		log.Error("ingestion: rebuild failed, previous collection left live", slog.Any("error", err))
		return r
	}
	r.ChunksWritten = n
	log.Info("ingestion: collection published",
		slog.Int("chunks", n),
		slog.Duration("duration", time.Since(began)),
	)
	return r
}

// rebuild embeds chunks into a new shadow collection and publishes it.
func (p *Pipeline) rebuild(ctx context.Context, log *slog.Logger, lang corpus.Language, chunks []rag.Chunk) (int, error) {
	shadow, err := p.store.CreateCollection(ctx, rag.CollectionSpec{
		Name:            corpus.CollectionName(lang),
		Language:        string(lang),
		EmbedderVersion: p.embedder.Version(),
		Dimension:       p.embedder.Dimension(),
	})
	if err != nil {
		return 0, fmt.Errorf("ingestion: create collection: %w", err)
	}

	published := false
	defer func() {
		if published {
			return
		}
		// Detached so a cancelled run still removes its shadow.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if derr := p.store.Discard(dctx, shadow); derr != nil {
			log.Warn("ingestion: discard shadow failed", slog.String("physical", shadow.Physical), slog.Any("error", derr))
		}
	}()

	embeddings, err := p.embed(ctx, log, chunks)
	if err != nil {
		return 0, err
	}
	if err := rag.AddBatched(ctx, p.store, shadow, chunks, embeddings, p.cfg.BatchSize); err != nil {
		var be *rag.BatchError
		if errors.As(err, &be) {
			log.Error("ingestion: batch write failed", slog.Int("failed_ids", len(be.FailedIDs)))
		}
		return 0, fmt.Errorf("ingestion: add chunks: %w", err)
	}
	if err := p.store.Publish(ctx, shadow); err != nil {
		return 0, fmt.Errorf("ingestion: publish: %w", err)
	}
	published = true
	return len(chunks), nil
}

// embed converts chunk text into vectors in batches of cfg.BatchSize.
func (p *Pipeline) embed(ctx context.Context, log *slog.Logger, chunks []rag.Chunk) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embed batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("ingestion: embed batch %d-%d: got %d vectors for %d texts", start, end, len(vecs), len(texts))
		}
		out = append(out, vecs...)
		log.Debug("ingestion: embedded batch", slog.Int("batch", start/p.cfg.BatchSize), slog.Int("chunks", len(texts)))
	}
	return out, nil
}
