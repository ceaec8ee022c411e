package answer

import (
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/icrag-go/internal/budget"
)

// DefaultMaxTurns bounds the history a Conversation carries.
const DefaultMaxTurns = 10

// Turn is one answered question.
type Turn struct {
	// Question is what the user asked.
	Question string `json:"question"`
	// Answer is the answer body without the citations block.
	Answer string `json:"answer"`
}

// Conversation is the history of one client session. It is built per
// request from what the client sends and is never shared between requests,
// so it needs no locking.
type Conversation struct {
	// turns holds answered questions, oldest first.
	turns []Turn
	// maxTurns bounds len(turns).
	maxTurns int
}

// NewConversation returns a Conversation seeded with history. Only the most
// recent DefaultMaxTurns turns are kept; turns with an empty question are
// dropped.
func NewConversation(history ...Turn) *Conversation {
	c := &Conversation{maxTurns: DefaultMaxTurns}
	for _, t := range history {
		if t.Question != "" {
			c.Append(t)
		}
	}
	return c
}

// Append records a turn, evicting the oldest beyond the bound.
func (c *Conversation) Append(t Turn) {
	c.turns = append(c.turns, t)
	if over := len(c.turns) - c.maxTurns; over > 0 {
		c.turns = c.turns[over:]
	}
}

// Turns returns a copy of the history, oldest first.
func (c *Conversation) Turns() []Turn {
	if c == nil {
		return nil
	}
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns held.
func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	return len(c.turns)
}

// Within returns the most recent turns whose estimated size fits within
// maxTokens.
func (c *Conversation) Within(maxTokens int) []Turn {
	turns := c.Turns()
	if len(turns) == 0 {
		return nil
	}
	history := make([]*schema.Message, 0, 2*len(turns))
	for _, t := range turns {
		history = append(history, schema.UserMessage(t.Question), schema.AssistantMessage(t.Answer, nil))
	}
	kept := budget.TrimHistory(nil, history, maxTokens)
	// A turn split by trimming is dropped whole.
	return turns[len(turns)-len(kept)/2:]
}
