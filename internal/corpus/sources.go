package corpus

import (
	"fmt"
	"path/filepath"
)

// Source is the declarative descriptor of the document that backs one
// language's collection.
type Source struct {
	// Language is the language the document is written in.
	Language Language `yaml:"language"`
	// File is the document path. Relative paths are resolved against the
	// corpus data directory.
	File string `yaml:"file"`
	// Title is a human-readable label used in citations. Defaults to the
	// base name of File.
	Title string `yaml:"title,omitempty"`
}

// Label returns the citation label for the source.
func (s Source) Label() string {
	if s.Title != "" {
		return s.Title
	}
	return filepath.Base(s.File)
}

// Path resolves File against dataDir.
func (s Source) Path(dataDir string) string {
	if filepath.IsAbs(s.File) || dataDir == "" {
		return s.File
	}
	return filepath.Join(dataDir, s.File)
}

// DefaultDataDir is the directory documents are read from when no data
// directory is configured.
const DefaultDataDir = "data"

// DefaultSources returns the built-in language to document table: the
// published constitution translations as PDFs.
func DefaultSources() []Source {
	return []Source{
		{Language: English, File: "indian-constitution.pdf"},
		{Language: Hindi, File: "ic-hindi.pdf"},
		{Language: Telugu, File: "ic-telugu.pdf"},
		{Language: Tamil, File: "ic-tamil.pdf"},
		{Language: Marathi, File: "ic-marathi.pdf"},
		{Language: Gujarati, File: "ic-gujarati.pdf"},
		{Language: Kannada, File: "ic-kannada.pdf"},
		{Language: Malayalam, File: "ic-malayalam.pdf"},
	}
}

// ValidateSources normalises every source language in place and rejects
// unknown languages, empty paths and duplicate languages.
func ValidateSources(sources []Source) error {
	seen := make(map[Language]bool, len(sources))
	for i := range sources {
		l, err := Parse(string(sources[i].Language))
		if err != nil {
			return fmt.Errorf("corpus: source %d: %w", i, err)
		}
		if sources[i].File == "" {
			return fmt.Errorf("corpus: source %d (%s): file is required", i, l)
		}
		if seen[l] {
			return fmt.Errorf("corpus: duplicate source for %s", l)
		}
		seen[l] = true
		sources[i].Language = l
	}
	return nil
}

// Filter returns the subset of sources whose language appears in langs.
// An empty langs returns sources unchanged.
func Filter(sources []Source, langs []Language) []Source {
	if len(langs) == 0 {
		return sources
	}
	want := make(map[Language]bool, len(langs))
	for _, l := range langs {
		want[l] = true
	}
	out := make([]Source, 0, len(langs))
	for _, s := range sources {
		if want[s.Language] {
			out = append(out, s)
		}
	}
	return out
}
