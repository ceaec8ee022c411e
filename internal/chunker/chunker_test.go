package chunker

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagesOf builds numbered pages from bodies.
func pagesOf(bodies ...string) []Page {
	out := make([]Page, len(bodies))
	for i, b := range bodies {
		out[i] = Page{Number: i + 1, Text: b}
	}
	return out
}

func TestSplit_ThreePageDocument(t *testing.T) {
	t.Parallel()
	pages := pagesOf(strings.Repeat("a", 1000), strings.Repeat("b", 1000), strings.Repeat("c", 500))
	require.Len(t, Text(pages), 2500)

	chunks := Split(pages, "indian-constitution.pdf", 1000)
	require.Len(t, chunks, 3)

	want := []string{"1-1", "2-2", "3-3"}
	for i, c := range chunks {
		assert.Equal(t, want[i], c.PageRange())
		assert.Equal(t, i, c.Sequence)
		assert.Equal(t, want[i], c.Metadata[MetaPageRange])
		assert.Equal(t, "indian-constitution.pdf", c.Metadata[MetaSource])
		assert.Equal(t, KindConstitution, c.Metadata[MetaKind])
	}
	assert.Len(t, chunks[2].Text, 500)
}

func TestSplit_AccumulatesAcrossPages(t *testing.T) {
	t.Parallel()
	pages := pagesOf(strings.Repeat("x", 400), strings.Repeat("y", 400), strings.Repeat("z", 400), "tail")

	chunks := Split(pages, "doc.txt", 1000)
	require.Len(t, chunks, 2)
	assert.Equal(t, "1-3", chunks[0].PageRange())
	assert.Equal(t, "4-4", chunks[1].PageRange())
	assert.Equal(t, "tail", chunks[1].Text)
}

func TestSplit_OversizedPageIsNotSplit(t *testing.T) {
	t.Parallel()
	chunks := Split(pagesOf(strings.Repeat("p", 3500), "short"), "doc.txt", 1000)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Text, 3500)
	assert.Equal(t, "1-1", chunks[0].PageRange())
}

func TestSplit_CoverageAndSizing(t *testing.T) {
	t.Parallel()
	var bodies []string
	for i := range 23 {
		bodies = append(bodies, strings.Repeat(string(rune('a'+i%26)), 90+i*17))
	}
	pages := pagesOf(bodies...)

	for _, limit := range []int{1, 100, 250, 1000, 5000} {
		chunks := Split(pages, "doc.txt", limit)
		require.NotEmpty(t, chunks, "limit %d", limit)

		var joined strings.Builder
		prevStart := 0
		for i, c := range chunks {
			joined.WriteString(c.Text)
			assert.Equal(t, i, c.Sequence)
			assert.GreaterOrEqual(t, c.PageStart, prevStart)
			assert.LessOrEqual(t, c.PageStart, c.PageEnd)
			prevStart = c.PageStart
			if i < len(chunks)-1 {
				assert.GreaterOrEqual(t, len([]rune(c.Text)), limit, "chunk %d under limit %d", i, limit)
			}
			assert.NotEmpty(t, c.Text)
		}
		assert.Equal(t, Text(pages), joined.String(), "limit %d", limit)
	}
}

func TestSplit_UniqueIDs(t *testing.T) {
	t.Parallel()
	chunks := Split(pagesOf("one", "two", "three"), "doc.txt", 1)
	seen := map[string]bool{}
	for _, c := range chunks {
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestSplit_EmptyInput(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Split(nil, "doc.txt", 1000))
	assert.Empty(t, Split(pagesOf("   ", "\n\n"), "doc.txt", 1000))
}

func TestSplit_DefaultLimit(t *testing.T) {
	t.Parallel()
	chunks := Split(pagesOf(strings.Repeat("a", 999), "b", "c"), "doc.txt", 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, "1-2", chunks[0].PageRange())
}

func TestSplit_CountsRunes(t *testing.T) {
	t.Parallel()
	// Each Devanagari rune is three bytes in UTF-8.
	page := strings.Repeat("क", 10)
	chunks := Split(pagesOf(page, page), "ic-hindi.pdf", 20)
	require.Len(t, chunks, 1)
	assert.Equal(t, "1-2", chunks[0].PageRange())
}

func TestParsePages(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{name: "empty", content: "", want: nil},
		{name: "single page", content: "Preamble", want: []string{"Preamble"}},
		{name: "trailing form feed", content: "one\ftwo\f", want: []string{"one", "two"}},
		{name: "blank page kept", content: "one\f\fthree", want: []string{"one", "", "three"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pages := ParsePages(tt.content)
			require.Len(t, pages, len(tt.want))
			for i, p := range pages {
				assert.Equal(t, i+1, p.Number)
				assert.Equal(t, tt.want[i], p.Text)
			}
		})
	}
}

func TestLoadPages(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ic-tamil.txt")
	require.NoError(t, os.WriteFile(path, []byte("page one\fpage two\f"), 0o600))

	pages, err := LoadPages(path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "page two", pages[1].Text)

	_, err = LoadPages(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadPages_PDF(t *testing.T) {
	t.Parallel()
	pages, err := LoadPages(filepath.Join("testdata", "articles.pdf"))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[0].Text, "Article 1. India, that is Bharat")
	assert.Contains(t, pages[1].Text, "equality before the law")
	for _, p := range pages {
		assert.NotContains(t, p.Text, "endobj")
	}

	chunks := Split(pages, "indian-constitution.pdf", 10)
	require.Len(t, chunks, 2)
	assert.Equal(t, "2-2", chunks[1].PageRange())
}

func TestLoadPages_PDFHeaderWithoutExtension(t *testing.T) {
	t.Parallel()
	data, err := os.ReadFile(filepath.Join("testdata", "articles.pdf"))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ic-hindi.txt")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	pages, err := LoadPages(path)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestLoadPages_MalformedPDF(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := map[string][]byte{
		"not-a-pdf.pdf": []byte("page one\fpage two"),
		"truncated.pdf": []byte("%PDF-1.4\n1 0 obj << /Type /Catalog /Pages 2 0 R >>"),
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, body, 0o600))
			pages, err := LoadPages(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedPDF)
			assert.Empty(t, pages)
		})
	}
}

func TestSplit_SizeIsMeasuredBeforeTrimming(t *testing.T) {
	t.Parallel()
	// The first page reaches the limit only because of its trailing newlines.
	chunks := Split(pagesOf("Article 1.\n\n\n\n", "Article 2."), "doc.txt", 14)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Article 1.", chunks[0].Text)
	assert.Equal(t, "1-1", chunks[0].PageRange())
	assert.Equal(t, "2-2", chunks[1].PageRange())
}

func TestInferMetadata(t *testing.T) {
	t.Parallel()
	tests := []struct {
		file      string
		kind      string
		amendment int
	}{
		{file: "indian-constitution.pdf", kind: KindConstitution},
		{file: "ic-hindi.txt", kind: KindConstitution},
		{file: "amendment-42.txt", kind: KindAmendment, amendment: 42},
		{file: "data/constitution-42nd-amendment.pdf", kind: KindAmendment, amendment: 42},
		{file: "IC_Amendment_101.TXT", kind: KindAmendment, amendment: 101},
		{file: "first-amendment-1st.txt", kind: KindAmendment, amendment: 1},
		{file: "amendments.txt", kind: KindAmendment},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			t.Parallel()
			got := InferMetadata(tt.file)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.amendment, got.Amendment)
		})
	}
}

func TestSplit_AmendmentMetadata(t *testing.T) {
	t.Parallel()
	chunks := Split(pagesOf("text"), "amendment-44.txt", 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, KindAmendment, chunks[0].Metadata[MetaKind])
	assert.Equal(t, "44", chunks[0].Metadata[MetaAmendment])
}
