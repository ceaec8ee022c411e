package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// defaultHashDimensions is the vector length of the hashing embedder.
const defaultHashDimensions = 384

// HashEmbedder is a deterministic, offline embedder using signed feature
// hashing over lowercased word tokens. It needs no model or network and
// works for any script, which makes it suitable for tests and air-gapped
// demos. Retrieval quality is lexical, not semantic.
type HashEmbedder struct {
	// dims is the number of hash buckets.
	dims int
}

// NewHashEmbedder returns a HashEmbedder with dims buckets (default 384).
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Version identifies the hashing scheme and dimension.
func (e *HashEmbedder) Version() string { return version("hash", "fnv1a-v1", e.dims) }

// Dimension returns the number of hash buckets.
func (e *HashEmbedder) Dimension() int { return e.dims }

// Embed hashes each text into an L2-normalised vector.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err //nolint:wrapcheck // context errors are returned as-is
		}
		out[i] = e.embedOne(t)
	}
	return out, nil
}

// embedOne hashes the tokens of text into a normalised vector.
func (e *HashEmbedder) embedOne(text string) []float32 {
	v := make([]float32, e.dims)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dims)) //nolint:gosec // dims > 0
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	l2normalize(v)
	return v
}

// tokenize splits text on anything that is not a letter, mark or digit, so
// Indic scripts with combining vowel signs stay within one token.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
	})
}

// l2normalize scales v to unit length in place.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
