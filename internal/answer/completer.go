// Package answer composes grounded answers: it retrieves context for a
// question, asks a completion backend to answer from that context only, and
// rewrites the backend's source annotations into numbered footnotes with a
// citations block.
package answer

import (
	"context"

	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/rag"
)

// Request is one call to a completion backend.
type Request struct {
	// SystemInstruction names the answer language and the grounding rules.
	SystemInstruction string
	// ContextText is the labelled retrieved passages.
	ContextText string
	// Question is the user's question.
	Question string
	// Language is the answer language.
	Language corpus.Language
	// Sources are the chunks ContextText labels [S1], [S2], ... in order.
	Sources []rag.Chunk
	// History holds prior turns of the same conversation, oldest first.
	History []Turn
	// MaxTokens caps the answer length. Zero leaves the backend default.
	MaxTokens int
	// Temperature is the sampling temperature. Zero leaves the backend default.
	Temperature float32
}

// Annotation is a span of the completion text that references a source.
type Annotation struct {
	// Text is the literal marker in the completion, e.g. "[S2]".
	Text string
	// Start is the byte offset of the marker in the completion text.
	Start int
	// End is the byte offset just past the marker.
	End int
	// SourceID identifies the referenced source: a chunk ID or a file ID.
	// Annotations with equal SourceIDs share a footnote.
	SourceID string
	// Quote is the cited text, if the backend supplied one.
	Quote string
	// SourceLabel is the human-readable source name shown in the citation.
	SourceLabel string
}

// Completion is a backend's answer and its source annotations.
type Completion struct {
	// Text is the raw answer text including any in-text markers.
	Text string
	// Annotations reference spans of Text.
	Annotations []Annotation
}

// Completer is an external completion capability.
type Completer interface {
	// Complete answers req. It blocks until the backend responds or ctx is done.
	Complete(ctx context.Context, req Request) (Completion, error)
}
