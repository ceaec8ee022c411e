// Package chunker splits extracted document pages into retrieval chunks
// with page provenance.
//
// Chunks are page-aligned: text accumulates page by page and a chunk is cut
// once the running buffer reaches the size limit. A page is never split, so a
// single long page may yield a chunk larger than the limit.
package chunker

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/54b3r/icrag-go/internal/rag"
)

// DefaultMaxChars is the chunk size limit used when the caller passes <= 0.
const DefaultMaxChars = 1000

// Metadata keys attached to every chunk.
const (
	MetaSource    = "source"
	MetaPageRange = "page_range"
	MetaChunkID   = "chunk_id"
	MetaLanguage  = "language"
	MetaKind      = "kind"
	MetaAmendment = "amendment"
)

// Page is the extracted text of one document page.
type Page struct {
	// Number is the 1-based page number.
	Number int
	// Text is the page body as extracted.
	Text string
}

// Split cuts pages into chunks of at least maxChars characters, except
// possibly the last. Characters are counted in runes so Indic scripts are
// sized the same way as Latin text. Size is measured before each chunk's
// surrounding whitespace is trimmed, so a trimmed chunk may fall short of
// maxChars. Zero pages yield nil.
func Split(pages []Page, source string, maxChars int) []rag.Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if len(pages) == 0 {
		return nil
	}

	meta := InferMetadata(source)
	var (
		out   []rag.Chunk
		buf   strings.Builder
		size  int
		start = pages[0].Number
	)

	emit := func(end int) {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		size = 0
		if text == "" {
			return
		}
		out = append(out, newChunk(text, source, start, end, len(out), meta))
	}

	for i, p := range pages {
		buf.WriteString(p.Text)
		size += len([]rune(p.Text))
		if size >= maxChars {
			emit(p.Number)
			if i+1 < len(pages) {
				start = pages[i+1].Number
			}
		}
	}
	if size > 0 {
		emit(pages[len(pages)-1].Number)
	}
	return out
}

// newChunk builds a chunk with a fresh ID and its provenance metadata.
func newChunk(text, source string, start, end, seq int, meta Inferred) rag.Chunk {
	c := rag.Chunk{
		ID:        uuid.NewString(),
		Text:      text,
		Source:    source,
		PageStart: start,
		PageEnd:   end,
		Sequence:  seq,
	}
	c.Metadata = map[string]string{
		MetaSource:    source,
		MetaPageRange: c.PageRange(),
		MetaChunkID:   strconv.Itoa(seq),
		MetaKind:      meta.Kind,
	}
	if meta.Amendment > 0 {
		c.Metadata[MetaAmendment] = strconv.Itoa(meta.Amendment)
	}
	return c
}

// Text concatenates the page bodies in order.
func Text(pages []Page) string {
	var b strings.Builder
	for _, p := range pages {
		b.WriteString(p.Text)
	}
	return b.String()
}
