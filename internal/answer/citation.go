package answer

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/icrag-go/internal/rag"
)

// citationsHeader opens the footnote block appended to an answer.
const citationsHeader = "**Citations:**"

// quoteFallback is shown when a citation carries no quote or marker text.
const quoteFallback = "Citation"

// maxQuoteRunes bounds the excerpt used as the quote for chunk citations.
const maxQuoteRunes = 200

// Citation is one numbered footnote.
type Citation struct {
	// Marker is the footnote number, starting at 1.
	Marker int
	// Quote is the cited text.
	Quote string
	// SourceLabel names the source document and pages.
	SourceLabel string
	// SourceID is the chunk or file the citation points at.
	SourceID string
}

// String renders the citation line: [n] "quote" from label.
func (c Citation) String() string {
	return fmt.Sprintf("[%d] \"%s\" from %s", c.Marker, c.Quote, c.SourceLabel)
}

// markerPattern matches the [S<n>] passage markers the chat prompt asks for.
var markerPattern = regexp.MustCompile(`\[S(\d+)\]`)

// ParseMarkers finds [S<n>] markers in text and resolves each against
// sources, where S1 is sources[0]. Markers naming a passage that was not
// supplied are ignored.
func ParseMarkers(text string, sources []rag.Chunk) []Annotation {
	var out []Annotation
	for _, m := range markerPattern.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || n < 1 || n > len(sources) {
			continue
		}
		src := sources[n-1]
		out = append(out, Annotation{
			Text:        text[m[0]:m[1]],
			Start:       m[0],
			End:         m[1],
			SourceID:    src.ID,
			Quote:       excerpt(src.Text, maxQuoteRunes),
			SourceLabel: ChunkLabel(src),
		})
	}
	return out
}

// ChunkLabel renders a chunk's provenance for citations.
func ChunkLabel(c rag.Chunk) string {
	return fmt.Sprintf("%s (pages %s)", c.Source, c.PageRange())
}

// excerpt collapses whitespace in s and truncates it to at most n runes on a
// word boundary, adding an ellipsis when shortened.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

// located is an annotation with a validated span in the text.
type located struct {
	ann        Annotation
	start, end int
}

// Resolve rewrites every annotation span in text to a sequential footnote
// marker and returns the rewritten text with its citations ordered by
// marker.
//
// Markers are assigned in order of first appearance in the text, left to
// right. Annotations that reference the same source reuse its marker.
// Annotations whose span cannot be found in text are cited after the rest.
func Resolve(text string, anns []Annotation) (string, []Citation) {
	var (
		spans      []located
		unanchored []Annotation
	)
	for _, a := range anns {
		if start, end, ok := span(text, a); ok {
			spans = append(spans, located{ann: a, start: start, end: end})
		} else {
			unanchored = append(unanchored, a)
		}
	}
	slices.SortStableFunc(spans, func(x, y located) int { return cmp.Compare(x.start, y.start) })

	var (
		b         strings.Builder
		citations []Citation
		markers   = map[string]int{}
		cursor    int
	)
	assign := func(a Annotation) int {
		k := sourceKey(a)
		if n, ok := markers[k]; ok {
			return n
		}
		n := len(citations) + 1
		markers[k] = n
		citations = append(citations, Citation{
			Marker:      n,
			Quote:       quoteOf(a),
			SourceLabel: a.SourceLabel,
			SourceID:    a.SourceID,
		})
		return n
	}

	for _, s := range spans {
		if s.start < cursor {
			// Overlaps the previous span; its source is still cited.
			assign(s.ann)
			continue
		}
		b.WriteString(text[cursor:s.start])
		if s.start > 0 && !isSpace(text[s.start-1]) {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "[%d]", assign(s.ann))
		cursor = s.end
	}
	b.WriteString(text[cursor:])

	for _, a := range unanchored {
		assign(a)
	}
	return b.String(), citations
}

// span returns the byte range of a in text. Offsets are trusted when they
// bracket a.Text; otherwise the first occurrence of a.Text is used.
func span(text string, a Annotation) (int, int, bool) {
	if a.Start >= 0 && a.Start < a.End && a.End <= len(text) {
		if a.Text == "" || text[a.Start:a.End] == a.Text {
			return a.Start, a.End, true
		}
	}
	if a.Text == "" {
		return 0, 0, false
	}
	i := strings.Index(text, a.Text)
	if i < 0 {
		return 0, 0, false
	}
	return i, i + len(a.Text), true
}

// sourceKey identifies the source span an annotation points at.
func sourceKey(a Annotation) string {
	if a.SourceID != "" {
		return "id\x00" + a.SourceID + "\x00" + a.Quote
	}
	return "label\x00" + a.SourceLabel + "\x00" + a.Quote + "\x00" + a.Text
}

// quoteOf applies the quote fallbacks: the quote, then the marker text, then
// a fixed placeholder.
func quoteOf(a Annotation) string {
	switch {
	case strings.TrimSpace(a.Quote) != "":
		return a.Quote
	case strings.TrimSpace(a.Text) != "":
		return a.Text
	default:
		return quoteFallback
	}
}

// isSpace reports whether b is ASCII whitespace.
func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// FormatCitations renders the citations block, or "" when there are none.
func FormatCitations(cs []Citation) string {
	if len(cs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(cs)+1)
	lines = append(lines, citationsHeader)
	for _, c := range cs {
		lines = append(lines, c.String())
	}
	return strings.Join(lines, "\n")
}

// Compose joins a resolved answer body and its citations block.
func Compose(body string, cs []Citation) string {
	block := FormatCitations(cs)
	if block == "" {
		return body
	}
	return strings.TrimRight(body, " \n") + "\n\n" + block
}
