package answer

import (
	"fmt"
	"strings"

	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/rag"
)

// noContext replaces the passages block when retrieval found nothing.
const noContext = "No context passages are available for this question."

// SystemInstruction returns the grounding instruction for answers in lang.
func SystemInstruction(lang corpus.Language) string {
	return fmt.Sprintf(`You answer questions about the Constitution of India and its Amendment Acts.

Rules:
- Answer in %[1]s.
- Use only the context passages supplied below. Do not use outside knowledge.
- After every statement taken from a passage, cite it with the passage marker, for example [S2].
- Include direct quotes from the relevant articles or sections where possible.
- If the passages do not contain the answer, say in %[1]s that the documents do not cover it.`, lang)
}

// ContextText labels each chunk with its marker and provenance:
//
//	[S1] (indian-constitution.pdf, pages 12-13)
//	<chunk text>
func ContextText(chunks []rag.Chunk) string {
	if len(chunks) == 0 {
		return "Context passages:\n" + noContext
	}
	var b strings.Builder
	b.WriteString("Context passages:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[S%d] (%s, pages %s)\n%s\n", i+1, c.Source, c.PageRange(), strings.TrimSpace(c.Text))
	}
	return b.String()
}

// notSupported holds the localised reply for languages whose collection has
// not been built.
var notSupported = map[corpus.Language]string{
	corpus.English:   "Answers in English are not yet supported.",
	corpus.Hindi:     "हिन्दी में उत्तर अभी उपलब्ध नहीं हैं।",
	corpus.Telugu:    "తెలుగులో సమాధానాలు ఇంకా అందుబాటులో లేవు.",
	corpus.Tamil:     "தமிழில் பதில்கள் இன்னும் கிடைக்கவில்லை.",
	corpus.Marathi:   "मराठीत उत्तरे अद्याप उपलब्ध नाहीत.",
	corpus.Gujarati:  "ગુજરાતીમાં જવાબો હજી ઉપલબ્ધ નથી.",
	corpus.Kannada:   "ಕನ್ನಡದಲ್ಲಿ ಉತ್ತರಗಳು ಇನ್ನೂ ಲಭ್ಯವಿಲ್ಲ.",
	corpus.Malayalam: "മലയാളത്തിൽ ഉത്തരങ്ങൾ ഇതുവരെ ലഭ്യമല്ല.",
}

// NotSupportedMessage returns the reply for a language that cannot be
// answered. Names outside the supported set get an English reply listing
// the supported languages.
func NotSupportedMessage(language string) string {
	if l, ok := corpus.Normalize(language); ok {
		return notSupported[l]
	}
	names := make([]string, 0, len(corpus.All()))
	for _, l := range corpus.All() {
		names = append(names, string(l))
	}
	return fmt.Sprintf("%q is not yet supported. Supported languages: %s.", language, strings.Join(names, ", "))
}
