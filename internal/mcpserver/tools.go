package mcpserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/icrag-go/internal/answer"
	"github.com/54b3r/icrag-go/internal/corpus"
)

// AskInput is the input schema for ask_question.
type AskInput struct {
	Question string        `json:"question" jsonschema:"the question about the Indian Constitution"`
	Language string        `json:"language,omitempty" jsonschema:"answer language, e.g. English, Hindi, Tamil (default English)"`
	History  []answer.Turn `json:"history,omitempty" jsonschema:"earlier turns of this conversation, oldest first"`
}

// CitationOutput is one numbered footnote.
type CitationOutput struct {
	Marker int    `json:"marker"`
	Quote  string `json:"quote"`
	Source string `json:"source,omitempty"`
}

// AskOutput is the output schema for ask_question.
type AskOutput struct {
	Answer    string           `json:"answer"`
	Language  string           `json:"language"`
	Supported bool             `json:"supported"`
	Citations []CitationOutput `json:"citations"`
	History   []answer.Turn    `json:"history"`
}

// LanguagesInput is the empty input schema for list_languages.
type LanguagesInput struct{}

// LanguagesOutput is the output schema for list_languages.
type LanguagesOutput struct {
	Languages []string `json:"languages"`
}

// FAQInput is the input schema for faq.
type FAQInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"constitution or amendment (default constitution)"`
}

// FAQOutput is the output schema for faq.
type FAQOutput struct {
	Kind      string   `json:"kind"`
	Questions []string `json:"questions"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question about the Indian Constitution in the selected language, with numbered citations",
	}, s.handleAsk)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_languages",
		Description: "List the languages questions can be answered in",
	}, s.handleLanguages)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "faq",
		Description: "Suggested questions about the constitution or its amendments",
	}, s.handleFAQ)
}

// handleAsk handles the ask_question tool invocation. Completion failures
// are logged and reported with a user-safe message.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	lang := input.Language
	if lang == "" {
		lang = string(corpus.English)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()

	conv := answer.NewConversation(input.History...)
	ans, err := s.cfg.Asker.Ask(ctx, conv, input.Question, lang)
	if err != nil {
		if errors.Is(err, answer.ErrEmptyQuestion) {
			return nil, AskOutput{}, err
		}
		s.log.Error("mcpserver: ask failed", slog.String("language", lang), slog.Any("error", err))
		return nil, AskOutput{}, errors.New(answer.UserMessage)
	}

	out := AskOutput{
		Answer:    ans.Text,
		Language:  ans.Language,
		Supported: ans.Supported,
		Citations: make([]CitationOutput, len(ans.Citations)),
		History:   conv.Turns(),
	}
	for i, c := range ans.Citations {
		out.Citations[i] = CitationOutput{Marker: c.Marker, Quote: c.Quote, Source: c.SourceLabel}
	}
	return nil, out, nil
}

// handleLanguages handles the list_languages tool invocation.
func (s *Server) handleLanguages(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ LanguagesInput,
) (*mcp.CallToolResult, LanguagesOutput, error) {
	all := corpus.All()
	out := LanguagesOutput{Languages: make([]string, len(all))}
	for i, l := range all {
		out.Languages[i] = string(l)
	}
	return nil, out, nil
}

// handleFAQ handles the faq tool invocation.
func (s *Server) handleFAQ(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input FAQInput,
) (*mcp.CallToolResult, FAQOutput, error) {
	kind := corpus.FAQKind(input.Kind)
	if kind == "" {
		kind = corpus.FAQConstitution
	}
	qs, err := corpus.FAQ(kind)
	if err != nil {
		return nil, FAQOutput{}, err
	}
	return nil, FAQOutput{Kind: string(kind), Questions: qs}, nil
}
