// Package corpus describes the multilingual constitution corpus: the set of
// supported answer languages, the document that backs each one, and the
// deterministic collection names the index store uses for them.
package corpus

import (
	"errors"
	"fmt"
	"strings"
)

// Language is a supported answer and retrieval language. Values use the
// English display name ("Hindi", "Tamil").
type Language string

const (
	// English is the primary constitution text.
	English Language = "English"
	// Hindi is the Hindi translation.
	Hindi Language = "Hindi"
	// Telugu is the Telugu translation.
	Telugu Language = "Telugu"
	// Tamil is the Tamil translation.
	Tamil Language = "Tamil"
	// Marathi is the Marathi translation.
	Marathi Language = "Marathi"
	// Gujarati is the Gujarati translation.
	Gujarati Language = "Gujarati"
	// Kannada is the Kannada translation.
	Kannada Language = "Kannada"
	// Malayalam is the Malayalam translation.
	Malayalam Language = "Malayalam"
)

// ErrUnsupportedLanguage is returned by Parse for names that do not resolve
// to a supported Language.
var ErrUnsupportedLanguage = errors.New("corpus: unsupported language")

// collectionPrefix is prepended to the lowercased language name to form the
// logical collection name.
const collectionPrefix = "constitution_"

// languages is the canonical ordering used by All and the /api/languages
// endpoint.
var languages = []Language{English, Hindi, Telugu, Tamil, Marathi, Gujarati, Kannada, Malayalam}

// aliases maps alternative spellings, in lowercase, to the canonical name.
var aliases = map[string]Language{
	"gujarathi": Gujarati,
}

// All returns every supported language in display order.
func All() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// Normalize resolves a user-supplied language name to a supported Language.
// Matching is case-insensitive and ignores surrounding whitespace. The
// second return value is false when the name is not supported.
func Normalize(name string) (Language, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", false
	}
	if l, ok := aliases[key]; ok {
		return l, true
	}
	for _, l := range languages {
		if strings.ToLower(string(l)) == key {
			return l, true
		}
	}
	return "", false
}

// Parse is Normalize with an error for unsupported names.
func Parse(name string) (Language, error) {
	l, ok := Normalize(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, name)
	}
	return l, nil
}

// Lower returns the lowercased language name.
func (l Language) Lower() string { return strings.ToLower(string(l)) }

// String implements fmt.Stringer.
func (l Language) String() string { return string(l) }

// CollectionName returns the logical collection name for l, for example
// "constitution_hindi".
func CollectionName(l Language) string {
	return collectionPrefix + l.Lower()
}
