package chunker

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Document kinds recorded in the "kind" metadata key.
const (
	KindConstitution = "constitution"
	KindAmendment    = "amendment"
)

// Inferred holds the document classification derived from a file name.
// Explicit configuration takes precedence; this is the best-effort fallback.
type Inferred struct {
	// Kind is KindConstitution or KindAmendment.
	Kind string
	// Amendment is the amendment number, or 0 when none was found.
	Amendment int
}

// InferMetadata classifies a source file name. Names mentioning "amendment"
// are amendments; the first number in such a name, with any ordinal suffix
// stripped, is taken as the amendment number. Everything else is the
// constitution text.
//
// Recognised shapes:
//
//	amendment-42.txt
//	constitution-42nd-amendment.pdf
//	ic_amendment_101.txt
func InferMetadata(filename string) Inferred {
	m := Inferred{Kind: KindConstitution}

	base := strings.ToLower(filepath.Base(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if !strings.Contains(base, KindAmendment) {
		return m
	}
	m.Kind = KindAmendment

	for _, seg := range splitSegments(base) {
		if n, ok := ordinal(seg); ok {
			m.Amendment = n
			break
		}
	}
	return m
}

// splitSegments splits a file stem on separators.
func splitSegments(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' ' || r == '.'
	})
}

// ordinal parses "42", "42nd", "1st", "3rd" or "101th" into a number.
func ordinal(seg string) (int, bool) {
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		if trimmed, ok := strings.CutSuffix(seg, suffix); ok {
			seg = trimmed
			break
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
