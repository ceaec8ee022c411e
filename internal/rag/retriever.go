package rag

import (
	"context"
	"log/slog"

	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/logging"
)

// DefaultTopK is the number of chunks returned when a caller does not set k.
const DefaultTopK = 5

// Querier is the surface of Index the Retriever depends on.
type Querier interface {
	// Query returns the k chunks of a collection nearest to text.
	Query(ctx context.Context, collection, text string, k int) QueryResult
}

// Retriever resolves a language to its collection and fetches the top-k
// chunks for a question.
type Retriever struct {
	// index answers nearest-neighbour queries.
	index Querier
	// defaultK is used when Retrieve is called with a negative k.
	defaultK int
}

// NewRetriever constructs a Retriever. defaultK <= 0 selects DefaultTopK.
func NewRetriever(index Querier, defaultK int) *Retriever {
	if defaultK <= 0 {
		defaultK = DefaultTopK
	}
	return &Retriever{index: index, defaultK: defaultK}
}

// Retrieve returns at most k chunks for question from the language's
// collection. A negative k selects the default. Unknown languages and
// languages with no collection yield an empty result, never an error.
func (r *Retriever) Retrieve(ctx context.Context, question, language string, k int) QueryResult {
	if k < 0 {
		k = r.defaultK
	}
	lang, ok := corpus.Normalize(language)
	if !ok {
		logging.FromContext(ctx).Info("rag: unsupported language", slog.String("language", language))
		return QueryResult{}
	}
	if k == 0 {
		return QueryResult{Collection: corpus.CollectionName(lang)}
	}
	return r.index.Query(ctx, corpus.CollectionName(lang), question, k)
}
