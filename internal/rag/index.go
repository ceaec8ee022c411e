package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/icrag-go/internal/logging"
)

// Index binds a VectorStore to the Embedder used to build it. Query embeds
// the question with that embedder and refuses collections built by any
// other embedder version.
type Index struct {
	// store is the underlying collection store.
	store VectorStore
	// embedder produces query vectors; its Version must match each collection's.
	embedder Embedder
}

// NewIndex constructs an Index over store using embedder for query vectors.
func NewIndex(store VectorStore, embedder Embedder) (*Index, error) {
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	return &Index{store: store, embedder: embedder}, nil
}

// Store returns the underlying VectorStore.
func (x *Index) Store() VectorStore { return x.store }

// Embedder returns the bound Embedder.
func (x *Index) Embedder() Embedder { return x.embedder }

// Query returns the k chunks of the named collection nearest to text.
// It never fails: every error is logged and degrades to an empty result.
func (x *Index) Query(ctx context.Context, collection, text string, k int) QueryResult {
	empty := QueryResult{Collection: collection}
	if k <= 0 {
		return empty
	}
	log := logging.FromContext(ctx).With(slog.String("collection", collection))

	hits, err := x.search(ctx, collection, text, k)
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			log.Info("rag: no live collection")
		} else {
			log.Warn("rag: query failed, continuing without grounding", slog.Any("error", err))
		}
		return empty
	}
	return QueryResult{Collection: collection, Hits: hits}
}

// search is Query with errors.
func (x *Index) search(ctx context.Context, collection, text string, k int) ([]Hit, error) {
	c, err := x.store.GetCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if c.EmbedderVersion != x.embedder.Version() {
		return nil, fmt.Errorf("%w: collection built with %q, querying with %q",
			ErrEmbedderMismatch, c.EmbedderVersion, x.embedder.Version())
	}

	vecs, err := x.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("rag: embedder returned no vectors")
	}

	hits, err := x.store.Search(ctx, c, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("rag: search failed: %w", err)
	}
	return Limit(hits, k), nil
}
