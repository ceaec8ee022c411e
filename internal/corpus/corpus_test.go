package corpus

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want Language
		ok   bool
	}{
		{"English", English, true},
		{"hindi", Hindi, true},
		{"  TAMIL ", Tamil, true},
		{"Gujarathi", Gujarati, true},
		{"gujarati", Gujarati, true},
		{"Malayalam", Malayalam, true},
		{"Klingon", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParse_Unsupported(t *testing.T) {
	t.Parallel()
	if _, err := Parse("Klingon"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestCollectionName(t *testing.T) {
	t.Parallel()
	if got := CollectionName(English); got != "constitution_english" {
		t.Errorf("got %q", got)
	}
	if got := CollectionName(Kannada); got != "constitution_kannada" {
		t.Errorf("got %q", got)
	}
}

func TestDefaultSources_CoverAllLanguages(t *testing.T) {
	t.Parallel()
	sources := DefaultSources()
	if err := ValidateSources(sources); err != nil {
		t.Fatalf("default sources invalid: %v", err)
	}
	if len(sources) != len(All()) {
		t.Fatalf("want %d sources, got %d", len(All()), len(sources))
	}
	if sources[0].Language != English || sources[0].Label() != "indian-constitution.pdf" {
		t.Errorf("first source: got %+v", sources[0])
	}
}

func TestValidateSources(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		sources []Source
		wantErr bool
	}{
		{"alias normalised", []Source{{Language: "gujarathi", File: "g.txt"}}, false},
		{"unknown language", []Source{{Language: "Klingon", File: "k.txt"}}, true},
		{"missing file", []Source{{Language: English}}, true},
		{"duplicate", []Source{{Language: English, File: "a"}, {Language: "english", File: "b"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateSources(tc.sources)
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSource_PathAndFilter(t *testing.T) {
	t.Parallel()
	s := Source{Language: Hindi, File: "ic-hindi.txt"}
	if got := s.Path("data"); got != "data/ic-hindi.txt" {
		t.Errorf("Path: got %q", got)
	}
	if got := s.Label(); got != "ic-hindi.txt" {
		t.Errorf("Label: got %q", got)
	}
	got := Filter(DefaultSources(), []Language{Tamil, Hindi})
	if len(got) != 2 || got[0].Language != Hindi || got[1].Language != Tamil {
		t.Errorf("Filter: got %+v", got)
	}
}

func TestFAQ(t *testing.T) {
	t.Parallel()
	for _, k := range []FAQKind{FAQConstitution, FAQAmendment} {
		qs, err := FAQ(k)
		if err != nil || len(qs) != 10 {
			t.Errorf("FAQ(%q): len=%d err=%v", k, len(qs), err)
		}
	}
	if _, err := FAQ("recipes"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
