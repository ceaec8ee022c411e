package chunker

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotFound is returned by LoadPages when the source file does not exist.
var ErrNotFound = fmt.Errorf("chunker: source not found: %w", fs.ErrNotExist)

// ErrMalformedPDF is returned by LoadPages for a .pdf file that cannot be parsed.
var ErrMalformedPDF = errors.New("chunker: malformed pdf")

// pageSeparator delimits pages in pdftotext output.
const pageSeparator = "\f"

// pdfMagic opens every PDF file.
var pdfMagic = []byte("%PDF-")

// LoadPages reads the pages of a source document. Files named *.pdf, or
// starting with the PDF header, are parsed as PDF with one Page per PDF page.
// Anything else is a plain-text extraction where pages are separated by form
// feeds, as written by `pdftotext`.
func LoadPages(path string) ([]Page, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("chunker: read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") || bytes.HasPrefix(data, pdfMagic) {
		pages, err := ParsePDF(data)
		if err != nil {
			return nil, fmt.Errorf("chunker: %s: %w", path, err)
		}
		return pages, nil
	}
	return ParsePages(string(data)), nil
}

// ParsePDF extracts the plain text of every page in a PDF document. Pages
// without a text layer come back with empty Text so numbering stays aligned
// with the printed document.
func ParsePDF(data []byte) (pages []Page, err error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, fmt.Errorf("%w: missing %%PDF header", ErrMalformedPDF)
	}
	// The reader panics on some broken object graphs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("%w: %v", ErrMalformedPDF, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPDF, err)
	}
	n := r.NumPage()
	pages = make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		var text string
		if !p.V.IsNull() {
			text, err = p.GetPlainText(nil)
			if err != nil {
				return nil, fmt.Errorf("%w: page %d: %w", ErrMalformedPDF, i, err)
			}
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}

// ParsePages splits content on form feeds into numbered pages. A file
// without form feeds is one page and the empty segment after a trailing
// form feed is dropped.
func ParsePages(content string) []Page {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	parts := strings.Split(content, pageSeparator)
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]Page, len(parts))
	for i, p := range parts {
		pages[i] = Page{Number: i + 1, Text: p}
	}
	return pages
}
