// Package rag defines the retrieval-augmented generation abstractions:
// chunks and their provenance, the per-language collection contract every
// index backend implements, the embedder contract, and the Index and
// Retriever that sit on top of them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Sentinel errors shared by all VectorStore implementations.
var (
	// ErrCollectionNotFound is returned when no live collection exists for a
	// logical name.
	ErrCollectionNotFound = errors.New("rag: collection not found")
	// ErrEmbedderMismatch is returned when a query embedder differs from the
	// embedder a collection was built with.
	ErrEmbedderMismatch = errors.New("rag: embedder version mismatch")
)

// Chunk is a bounded span of document text with page provenance. It is the
// unit of retrieval.
type Chunk struct {
	// ID is a UUID assigned at ingestion time.
	ID string
	// Text is the chunk body.
	Text string
	// Source is the document label the chunk was cut from (e.g. "ic-hindi.pdf").
	Source string
	// PageStart is the first page that contributed text.
	PageStart int
	// PageEnd is the last page that contributed text.
	PageEnd int
	// Sequence is the chunk's position within its document, starting at 0.
	Sequence int
	// Metadata carries additional string attributes (language, kind, amendment).
	Metadata map[string]string
}

// PageRange renders the page span as "start-end".
func (c Chunk) PageRange() string {
	return strconv.Itoa(c.PageStart) + "-" + strconv.Itoa(c.PageEnd)
}

// Hit is one search result: a chunk and its cosine distance from the query
// vector. Smaller is closer.
type Hit struct {
	// Chunk is the matched chunk.
	Chunk Chunk
	// Distance is 1 - cosine similarity, in [0, 2].
	Distance float32
}

// QueryResult is the ordered outcome of a retrieval, closest first.
// An empty QueryResult means no grounding is available.
type QueryResult struct {
	// Collection is the logical collection that was searched. Empty when the
	// language did not resolve to a collection.
	Collection string
	// Hits are ordered by ascending Distance.
	Hits []Hit
}

// Empty reports whether the result carries no hits.
func (r QueryResult) Empty() bool { return len(r.Hits) == 0 }

// IDs returns the chunk IDs in result order.
func (r QueryResult) IDs() []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.Chunk.ID
	}
	return ids
}

// CollectionSpec describes a collection to create.
type CollectionSpec struct {
	// Name is the logical name, e.g. "constitution_english".
	Name string
	// Language is the display name of the collection's language.
	Language string
	// EmbedderVersion identifies the embedding function that will populate it.
	EmbedderVersion string
	// Dimension is the embedding vector length.
	Dimension int
}

// Collection is a handle to one physical collection.
type Collection struct {
	// Name is the logical name shared by every generation of the collection.
	Name string
	// Language is the display name of the collection's language.
	Language string
	// Physical is the backend-specific name of this generation.
	Physical string
	// EmbedderVersion is the version of the embedder that built it.
	EmbedderVersion string
	// Dimension is the embedding vector length.
	Dimension int
	// Count is the number of chunks stored. Populated by GetCollection and
	// ListCollections.
	Count int
	// CreatedAt is when the generation was created.
	CreatedAt time.Time
}

// VectorStore is the contract for a persistent per-language index.
//
// Collections follow a shadow lifecycle: CreateCollection returns a fresh,
// unpublished generation; Add fills it; Publish atomically makes it the live
// collection for its logical name and drops the previous generation.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// CreateCollection creates an empty, unpublished generation. Stale
	// unpublished generations with the same logical name are removed.
	CreateCollection(ctx context.Context, spec CollectionSpec) (*Collection, error)

	// Add inserts one batch atomically. On failure nothing from the batch is
	// stored and the returned error is a *BatchError naming every ID in it.
	Add(ctx context.Context, c *Collection, chunks []Chunk, embeddings [][]float32) error

	// Publish swaps the live mapping for c.Name to c and removes the
	// generation it replaced.
	Publish(ctx context.Context, c *Collection) error

	// Discard removes an unpublished generation.
	Discard(ctx context.Context, c *Collection) error

	// GetCollection returns the live generation for a logical name, or
	// ErrCollectionNotFound.
	GetCollection(ctx context.Context, name string) (*Collection, error)

	// Search returns at most k hits from c ordered by ascending cosine distance.
	Search(ctx context.Context, c *Collection, vector []float32, k int) ([]Hit, error)

	// ListCollections returns every live collection.
	ListCollections(ctx context.Context) ([]Collection, error)

	// Close releases resources held by the store.
	Close() error
}

// Embedder converts text into fixed-dimension vectors. The same Embedder
// must serve ingestion and query; Version is recorded on each collection so
// mismatches are detected at query time.
type Embedder interface {
	// Embed converts a batch of texts; the result is parallel to texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Version identifies the embedding function, e.g. "ollama/nomic-embed-text@768".
	Version() string
	// Dimension is the length of every returned vector.
	Dimension() int
}

// BatchError reports a failed Add batch and the chunk IDs it contained.
type BatchError struct {
	// Collection is the physical collection the batch targeted.
	Collection string
	// FailedIDs lists every chunk ID in the failed batch.
	FailedIDs []string
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *BatchError) Error() string {
	return fmt.Sprintf("rag: batch of %d chunks failed for %s: %v", len(e.FailedIDs), e.Collection, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BatchError) Unwrap() error { return e.Err }

// DefaultBatchSize is the number of chunks written per Add call.
const DefaultBatchSize = 100

// AddBatched splits chunks into batches of batchSize and calls s.Add for
// each. Every batch is attempted; failures are merged into a single
// *BatchError listing all failed IDs.
func AddBatched(ctx context.Context, s VectorStore, c *Collection, chunks []Chunk, embeddings [][]float32, batchSize int) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("rag: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var merged *BatchError
	for start := 0; start < len(chunks); start += batchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rag: add cancelled: %w", err)
		}
		end := min(start+batchSize, len(chunks))
		err := s.Add(ctx, c, chunks[start:end], embeddings[start:end])
		if err == nil {
			continue
		}
		var be *BatchError
		cause := err
		if errors.As(err, &be) {
			cause = be.Err
		}
		if merged == nil {
			merged = &BatchError{Collection: c.Physical, Err: cause}
		}
		if be != nil {
			merged.FailedIDs = append(merged.FailedIDs, be.FailedIDs...)
			continue
		}
		for _, ch := range chunks[start:end] {
			merged.FailedIDs = append(merged.FailedIDs, ch.ID)
		}
	}
	if merged != nil {
		return merged
	}
	return nil
}
