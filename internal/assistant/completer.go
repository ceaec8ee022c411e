package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/54b3r/icrag-go/internal/answer"
	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/logging"
)

// API is the subset of the go-openai client the Completer uses.
// *openai.Client satisfies it.
type API interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order, after, before, runID *string) (openai.MessagesList, error)
	GetFile(ctx context.Context, fileID string) (openai.File, error)
}

// Config configures the hosted assistant backend.
type Config struct {
	// AssistantID is the assistant that has the constitution files attached.
	AssistantID string
	// Poller drives runs to completion. Defaults to NewPoller(0, 0, 0).
	Poller *Poller
}

// Completer answers through a hosted assistant. Each call creates its own
// thread, so no conversation state is kept between requests.
type Completer struct {
	// api is the vendor client.
	api API
	// assistantID is the assistant every run targets.
	assistantID string
	// poller waits for runs to finish.
	poller *Poller
}

// NewCompleter constructs a Completer.
func NewCompleter(api API, cfg Config) (*Completer, error) {
	if api == nil {
		return nil, fmt.Errorf("assistant: client must not be nil")
	}
	if cfg.AssistantID == "" {
		return nil, fmt.Errorf("assistant: assistant id is required")
	}
	if cfg.Poller == nil {
		cfg.Poller = NewPoller(0, 0, 0)
	}
	return &Completer{api: api, assistantID: cfg.AssistantID, poller: cfg.Poller}, nil
}

// Instructions returns the run instructions for answers in lang.
func Instructions(lang corpus.Language) string {
	return fmt.Sprintf(`Please answer the questions using only the knowledge provided in the uploaded Indian Constitution files.

- Include direct quotes from the relevant sections of the document in your answer.
- Ensure that the 'quote' field in the file_citation includes the exact text from the document.
- Provide detailed answers in %s, with citations at the end.
- The citations should reference specific articles or sections, including the quoted text.`, lang)
}

// Complete implements answer.Completer.
func (c *Completer) Complete(ctx context.Context, req answer.Request) (answer.Completion, error) {
	log := logging.FromContext(ctx)

	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{Messages: threadMessages(req)})
	if err != nil {
		return answer.Completion{}, fmt.Errorf("assistant: create thread: %w", err)
	}
	run, err := c.api.CreateRun(ctx, thread.ID, openai.RunRequest{
		AssistantID:  c.assistantID,
		Instructions: Instructions(req.Language),
	})
	if err != nil {
		return answer.Completion{}, fmt.Errorf("assistant: create run: %w", err)
	}
	log = log.With(slog.String("thread_id", thread.ID), slog.String("run_id", run.ID))
	log.Debug("assistant: run created")

	state, err := c.poller.Wait(logging.WithLogger(ctx, log), func(ctx context.Context) (Observation, error) {
		r, err := c.api.RetrieveRun(ctx, thread.ID, run.ID)
		if err != nil {
			return Observation{}, err //nolint:wrapcheck // wrapped by Wait
		}
		obs := Observation{State: FromStatus(string(r.Status))}
		if r.LastError != nil {
			obs.Detail = r.LastError.Message
		}
		return obs, nil
	})
	if err != nil {
		log.Warn("assistant: run did not complete", slog.String("state", state.String()), slog.Any("error", err))
		return answer.Completion{}, err
	}

	order := "asc"
	msgs, err := c.api.ListMessage(ctx, thread.ID, nil, &order, nil, nil, &run.ID)
	if err != nil {
		return answer.Completion{}, fmt.Errorf("assistant: list messages: %w", err)
	}
	return c.completion(ctx, run.ID, msgs.Messages)
}

// threadMessages seeds a thread with the prior turns and the question.
func threadMessages(req answer.Request) []openai.ThreadMessage {
	out := make([]openai.ThreadMessage, 0, 2*len(req.History)+1)
	for _, t := range req.History {
		out = append(out,
			openai.ThreadMessage{Role: openai.ThreadMessageRoleUser, Content: t.Question},
			openai.ThreadMessage{Role: openai.ThreadMessageRoleAssistant, Content: t.Answer},
		)
	}
	return append(out, openai.ThreadMessage{Role: openai.ThreadMessageRoleUser, Content: req.Question})
}

// fileAnnotation is the wire shape of an assistant text annotation.
type fileAnnotation struct {
	// Type is "file_citation" or "file_path".
	Type string `json:"type"`
	// Text is the in-text marker, e.g. "【4:0†source】".
	Text string `json:"text"`
	// StartIndex is the marker's character offset in the text value.
	StartIndex int `json:"start_index"`
	// EndIndex is the character offset just past the marker.
	EndIndex int `json:"end_index"`
	// FileCitation is set for file_citation annotations.
	FileCitation *struct {
		FileID string `json:"file_id"`
		Quote  string `json:"quote"`
	} `json:"file_citation"`
}

// completion joins the assistant's text for runID and maps its file
// citations to answer annotations.
func (c *Completer) completion(ctx context.Context, runID string, msgs []openai.Message) (answer.Completion, error) {
	var (
		b     strings.Builder
		anns  []answer.Annotation
		names = map[string]string{}
	)
	for _, m := range msgs {
		if m.Role != "assistant" || (m.RunID != nil && *m.RunID != runID) {
			continue
		}
		for _, content := range m.Content {
			if content.Text == nil {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			base := b.Len()
			value := content.Text.Value
			b.WriteString(value)

			parsed, err := decodeAnnotations(content.Text.Annotations)
			if err != nil {
				return answer.Completion{}, err
			}
			for _, a := range parsed {
				if a.Type != "file_citation" || a.FileCitation == nil {
					continue
				}
				start, end := byteOffset(value, a.StartIndex), byteOffset(value, a.EndIndex)
				anns = append(anns, answer.Annotation{
					Text:        a.Text,
					Start:       base + start,
					End:         base + end,
					SourceID:    a.FileCitation.FileID,
					Quote:       a.FileCitation.Quote,
					SourceLabel: c.fileName(ctx, names, a.FileCitation.FileID),
				})
			}
		}
	}
	if b.Len() == 0 {
		return answer.Completion{}, fmt.Errorf("assistant: run %s produced no text", runID)
	}
	return answer.Completion{Text: b.String(), Annotations: anns}, nil
}

// decodeAnnotations re-reads the client's loosely typed annotations.
func decodeAnnotations(raw any) ([]fileAnnotation, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("assistant: encode annotations: %w", err)
	}
	var out []fileAnnotation
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("assistant: decode annotations: %w", err)
	}
	return out, nil
}

// fileName resolves a file ID to its filename, caching per answer. Lookup
// failures fall back to the ID.
func (c *Completer) fileName(ctx context.Context, cache map[string]string, id string) string {
	if name, ok := cache[id]; ok {
		return name
	}
	name := id
	f, err := c.api.GetFile(ctx, id)
	if err != nil {
		logging.FromContext(ctx).Warn("assistant: file lookup failed", slog.String("file_id", id), slog.Any("error", err))
	} else if f.FileName != "" {
		name = f.FileName
	}
	cache[id] = name
	return name
}

// byteOffset converts a character offset in s to a byte offset, clamped to
// len(s).
func byteOffset(s string, chars int) int {
	if chars <= 0 {
		return 0
	}
	i := 0
	for n := 0; n < chars && i < len(s); n++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}
