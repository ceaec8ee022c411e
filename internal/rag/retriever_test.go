package rag_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/embedder"
	"github.com/54b3r/icrag-go/internal/rag"
	"github.com/54b3r/icrag-go/internal/store"
)

var articles = []string{
	"Article 14 guarantees equality before the law and equal protection of the laws.",
	"Article 19 protects freedom of speech and expression, assembly and association.",
	"Article 21 provides that no person shall be deprived of life or personal liberty.",
	"Article 32 gives the right to move the Supreme Court for enforcement of rights.",
	"Article 44 directs the State to secure a uniform civil code for citizens.",
	"Article 51A lists the fundamental duties of every citizen of India.",
	"The Preamble declares India a sovereign socialist secular democratic republic.",
}

// newIndex builds an Index over a temp SQLite store with one published
// English collection.
func newIndex(t *testing.T, emb rag.Embedder) (*rag.Index, *store.SQLiteStore) {
	t.Helper()
	s, err := store.OpenDir(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	c, err := s.CreateCollection(ctx, rag.CollectionSpec{
		Name:            corpus.CollectionName(corpus.English),
		Language:        string(corpus.English),
		EmbedderVersion: emb.Version(),
		Dimension:       emb.Dimension(),
	})
	require.NoError(t, err)

	chunks := make([]rag.Chunk, len(articles))
	for i, text := range articles {
		chunks[i] = rag.Chunk{ID: fmt.Sprintf("00000000-0000-0000-0000-%012d", i), Text: text, Source: "indian-constitution.pdf", PageStart: i + 1, PageEnd: i + 1, Sequence: i}
	}
	vecs, err := emb.Embed(ctx, articles)
	require.NoError(t, err)
	require.NoError(t, rag.AddBatched(ctx, s, c, chunks, vecs, 3))
	require.NoError(t, s.Publish(ctx, c))

	idx, err := rag.NewIndex(s, emb)
	require.NoError(t, err)
	return idx, s
}

func TestRetriever_Deterministic(t *testing.T) {
	t.Parallel()
	idx, _ := newIndex(t, embedder.NewHashEmbedder(1024))
	r := rag.NewRetriever(idx, 0)
	ctx := context.Background()

	first := r.Retrieve(ctx, "personal liberty and life", "English", 3)
	second := r.Retrieve(ctx, "personal liberty and life", "english", 3)
	require.Len(t, first.Hits, 3)
	assert.Equal(t, first.IDs(), second.IDs())
	assert.Equal(t, "constitution_english", first.Collection)
	assert.Contains(t, first.Hits[0].Chunk.Text, "Article 21")

	for i := 1; i < len(first.Hits); i++ {
		assert.LessOrEqual(t, first.Hits[i-1].Distance, first.Hits[i].Distance)
	}
}

func TestRetriever_KBound(t *testing.T) {
	t.Parallel()
	idx, _ := newIndex(t, embedder.NewHashEmbedder(128))
	r := rag.NewRetriever(idx, 2)
	ctx := context.Background()

	for _, k := range []int{1, 2, 5, 7, 50} {
		res := r.Retrieve(ctx, "citizen duties", "English", k)
		assert.LessOrEqual(t, len(res.Hits), k, "k=%d", k)
		assert.LessOrEqual(t, len(res.Hits), len(articles))
	}
	assert.True(t, r.Retrieve(ctx, "citizen duties", "English", 0).Empty())
	assert.Len(t, r.Retrieve(ctx, "citizen duties", "English", -1).Hits, 2, "negative k selects the default")
}

func TestRetriever_UnsupportedLanguage(t *testing.T) {
	t.Parallel()
	idx, _ := newIndex(t, embedder.NewHashEmbedder(64))
	r := rag.NewRetriever(idx, 5)

	res := r.Retrieve(context.Background(), "What is Article 21?", "Klingon", 5)
	assert.True(t, res.Empty())
	assert.Empty(t, res.Collection)

	res = r.Retrieve(context.Background(), "What is Article 21?", "Hindi", 5)
	assert.True(t, res.Empty(), "supported language without a collection")
	assert.Equal(t, "constitution_hindi", res.Collection)
}

func TestIndex_EmbedderMismatchYieldsEmpty(t *testing.T) {
	t.Parallel()
	_, s := newIndex(t, embedder.NewHashEmbedder(64))

	other, err := rag.NewIndex(s, embedder.NewHashEmbedder(128))
	require.NoError(t, err)
	res := other.Query(context.Background(), "constitution_english", "equality", 3)
	assert.True(t, res.Empty())
}

func TestNewIndex_Validation(t *testing.T) {
	t.Parallel()
	_, err := rag.NewIndex(nil, embedder.NewHashEmbedder(8))
	assert.Error(t, err)
	s, err := store.OpenDir(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = rag.NewIndex(s, nil)
	assert.Error(t, err)
}
