package answer

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatCompleter answers through an eino chat model. Source references are
// the [S<n>] markers the system instruction asks the model to emit.
type ChatCompleter struct {
	// model is the chat backend built by the provider package.
	model model.BaseChatModel
}

// NewChatCompleter wraps m.
func NewChatCompleter(m model.BaseChatModel) (*ChatCompleter, error) {
	if m == nil {
		return nil, fmt.Errorf("answer: chat model must not be nil")
	}
	return &ChatCompleter{model: m}, nil
}

// Complete implements Completer.
func (c *ChatCompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	resp, err := c.model.Generate(ctx, Messages(req), options(req)...)
	if err != nil {
		return Completion{}, fmt.Errorf("answer: generate: %w", err)
	}
	if resp == nil {
		return Completion{}, fmt.Errorf("answer: model returned no message")
	}
	return Completion{
		Text:        resp.Content,
		Annotations: ParseMarkers(resp.Content, req.Sources),
	}, nil
}

// Messages lays out req as a chat transcript: the instruction and context as
// the system message, prior turns, then the question.
func Messages(req Request) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2+2*len(req.History))
	msgs = append(msgs, schema.SystemMessage(req.SystemInstruction+"\n\n"+req.ContextText))
	for _, t := range req.History {
		msgs = append(msgs, schema.UserMessage(t.Question), schema.AssistantMessage(t.Answer, nil))
	}
	return append(msgs, schema.UserMessage(req.Question))
}

// options maps request limits to eino call options.
func options(req Request) []model.Option {
	var opts []model.Option
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(req.Temperature))
	}
	return opts
}
