package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/ingestion"
	"github.com/54b3r/icrag-go/internal/logging"
)

// NewIngestCmd constructs the `icrag ingest` command, which builds one
// collection per language from the configured constitution documents.
func NewIngestCmd() *cobra.Command {
	var languages []string
	var watch bool
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the per-language collections from the constitution documents",
		Long: `Read each configured constitution document, split it into page-tagged chunks,
embed them, and publish one collection per language.

Each language is rebuilt into a fresh collection that replaces the live one
only once every chunk is stored, so queries never see a half-built index.
A missing or empty document is skipped with a warning; the other languages
are still ingested.

Documents are read from corpus.data_dir (ICRAG_DATA_DIR, default ./data).
The language to document table comes from corpus.sources in the YAML config
and defaults to the eight built-in documents.

Examples:
  icrag ingest
  icrag ingest --language Hindi --language Tamil
  icrag ingest --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)
			cfg := loadedConfig

			langs := make([]corpus.Language, 0, len(languages))
			for _, name := range languages {
				l, err := corpus.Parse(name)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				langs = append(langs, l)
			}
			sources := corpus.Filter(cfg.Corpus.Sources, langs)
			if len(sources) == 0 {
				return fmt.Errorf("ingest: no configured source for %v", languages)
			}

			vs, _, err := openStore(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer vs.Close()

			emb, err := newEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			pipeline, err := ingestion.NewPipeline(emb, vs, &ingestion.Config{
				DataDir:   cfg.Corpus.DataDir,
				ChunkSize: cfg.Corpus.ChunkSize,
				BatchSize: cfg.Corpus.BatchSize,
			}, ingestion.NewMetrics(prometheus.DefaultRegisterer))
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion",
				slog.Int("sources", len(sources)),
				slog.String("data_dir", cfg.Corpus.DataDir),
			)
			sum := pipeline.IngestAll(ctx, sources)
			logSummary(log, sum)

			if watch {
				return watchSources(ctx, log, pipeline, cfg.Corpus.DataDir, sources, debounce)
			}
			if !sum.OK() {
				return fmt.Errorf("ingest: %d of %d languages failed", sum.Failed, len(sum.Reports))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&languages, "language", "l", nil, "Language to ingest (repeatable, default: all configured)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and re-ingest a language when its document changes")
	cmd.Flags().DurationVar(&debounce, "debounce", ingestion.DefaultDebounce, "Quiet period before a changed document is re-ingested")

	return cmd
}

// logSummary writes one line per language and a closing total.
func logSummary(log *slog.Logger, sum ingestion.Summary) {
	for _, r := range sum.Reports {
		attrs := []any{
			slog.String("language", string(r.Language)),
			slog.String("collection", r.Collection),
			slog.String("source", r.Source),
			slog.Int("chunks", r.ChunksWritten),
			slog.Duration("duration", r.Duration),
		}
		switch {
		case r.Err != nil:
			log.Error("ingest: language failed", append(attrs, slog.Any("error", r.Err))...)
		case r.Skipped:
			log.Warn("ingest: language skipped", append(attrs, slog.String("reason", r.Reason))...)
		default:
			log.Info("ingest: language published", attrs...)
		}
	}
	log.Info("ingestion complete",
		slog.Int("written", sum.Written),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed),
	)
}

// watchSources re-ingests sources as their documents change until ctx is
// cancelled.
func watchSources(ctx context.Context, log *slog.Logger, ing ingestion.Ingester, dataDir string, sources []corpus.Source, debounce time.Duration) error {
	reports, err := ingestion.NewWatcher(ing, dataDir, sources, debounce).Start(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	log.Info("watching sources for changes", slog.Int("sources", len(sources)))
	for r := range reports {
		logSummary(log, ingestion.Summary{Reports: []ingestion.Report{r}, Written: boolInt(r.Err == nil && !r.Skipped), Skipped: boolInt(r.Skipped), Failed: boolInt(r.Err != nil)})
	}
	log.Info("watch stopped")
	return nil
}

// boolInt is 1 for true and 0 for false.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
