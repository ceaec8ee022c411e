// Package budget estimates token usage for prompts and trims retrieved
// context and conversation history to fit a model's input window.
//
// Backends use different tokenizers, so estimation is a character heuristic:
// about 4 ASCII characters per token, and about 2 runes per token for other
// scripts, which tokenise far less densely. Both round up so the estimate
// errs on the side of headroom.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/icrag-go/internal/rag"
)

const (
	// asciiPerToken is the ASCII character-to-token ratio.
	asciiPerToken = 4

	// runesPerToken is the ratio applied to non-ASCII runes (Devanagari,
	// Tamil, Telugu and the other Indic scripts).
	runesPerToken = 2

	// messageOverhead is the per-message framing cost in most chat APIs.
	messageOverhead = 4

	// chunkOverhead covers the "[S<n>] (source, pages a-b)" label that
	// precedes each context chunk.
	chunkOverhead = 16

	// DefaultMaxContextTokens is the default budget for retrieved context.
	// Fits five 1000-character chunks in an 8k-context model with room left
	// for the instruction, question and answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	var ascii, other int
	for _, r := range s {
		if r < 0x80 {
			ascii++
		} else {
			other++
		}
	}
	return ceilDiv(ascii, asciiPerToken) + ceilDiv(other, runesPerToken)
}

// ceilDiv divides rounding up.
func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

// EstimateMessages returns the estimated total token count for msgs,
// summing role, content and framing for each.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitChunks returns the longest prefix of hits whose estimated context cost
// fits within maxTokens. Hits are assumed ordered best first, so the closest
// chunks are kept. The first hit is always kept when present so an answer is
// never left without grounding that retrieval found. maxTokens <= 0 selects
// DefaultMaxContextTokens.
func FitChunks(hits []rag.Hit, maxTokens int) []rag.Hit {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	used := 0
	for i, h := range hits {
		used += chunkOverhead + Estimate(h.Chunk.Text)
		if used > maxTokens && i > 0 {
			return hits[:i]
		}
	}
	return hits
}

// TrimHistory drops the oldest turns from history until fixed + history fits
// within maxTokens. fixed holds messages that are never dropped: the system
// instruction, the grounding context and the current question.
//
// If fixed alone exceeds the budget the returned history is empty; callers
// decide whether to warn.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	fixedTokens := EstimateMessages(fixed)
	for len(history) > 0 && fixedTokens+EstimateMessages(history) > maxTokens {
		history = history[1:]
	}
	return history
}
