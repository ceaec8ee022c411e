package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/rag"
)

// fakeRetriever returns a fixed result and records calls.
type fakeRetriever struct {
	result rag.QueryResult
	calls  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, language string, _ int) rag.QueryResult {
	f.calls++
	r := f.result
	if l, ok := corpus.Normalize(language); ok {
		r.Collection = corpus.CollectionName(l)
	}
	return r
}

// scriptedCompleter fails the first failures calls, then answers with reply.
type scriptedCompleter struct {
	mu       sync.Mutex
	failures int
	reply    func(Request) Completion
	calls    int
	requests []Request
	block    bool
}

func (s *scriptedCompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	s.mu.Lock()
	s.calls++
	s.requests = append(s.requests, req)
	n := s.calls
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return Completion{}, ctx.Err()
	}
	if n <= s.failures {
		return Completion{}, fmt.Errorf("upstream 503 on attempt %d", n)
	}
	return s.reply(req), nil
}

// echoMarkers answers by citing S2 then S1 as chat models do.
func echoMarkers(req Request) Completion {
	text := "Equality is guaranteed [S2] and liberty protected [S1]."
	return Completion{Text: text, Annotations: ParseMarkers(text, req.Sources)}
}

// fakeLookup reports collections present in built.
type fakeLookup struct {
	built map[string]bool
	err   error
}

func (f *fakeLookup) GetCollection(_ context.Context, name string) (*rag.Collection, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.built[name] {
		return &rag.Collection{Name: name}, nil
	}
	return nil, fmt.Errorf("%w: %s", rag.ErrCollectionNotFound, name)
}

func twoHits() rag.QueryResult {
	return rag.QueryResult{Hits: []rag.Hit{
		{Chunk: rag.Chunk{ID: "c21", Text: "Article 21. No person shall be deprived of life or personal liberty.", Source: "indian-constitution.pdf", PageStart: 9, PageEnd: 9}, Distance: 0.1},
		{Chunk: rag.Chunk{ID: "c14", Text: "Article 14. Equality before law.", Source: "indian-constitution.pdf", PageStart: 6, PageEnd: 6}, Distance: 0.2},
	}}
}

func fastConfig() *Config {
	return &Config{RetryInitial: time.Millisecond, RetryMax: 2 * time.Millisecond, Timeout: time.Second}
}

func TestService_AskComposesCitations(t *testing.T) {
	t.Parallel()
	comp := &scriptedCompleter{reply: echoMarkers}
	svc, err := NewService(&fakeRetriever{result: twoHits()}, comp, nil, fastConfig(), NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)

	a, err := svc.Ask(context.Background(), nil, "  What does Article 21 say?  ", "english")
	require.NoError(t, err)
	assert.True(t, a.Supported)
	assert.Equal(t, "What does Article 21 say?", a.Question)
	assert.Equal(t, "English", a.Language)
	assert.Equal(t, "constitution_english", a.Collection)
	assert.Equal(t, "Equality is guaranteed [1] and liberty protected [2].", a.Body)
	require.Len(t, a.Citations, 2)
	assert.Equal(t, "c14", a.Citations[0].SourceID)
	assert.True(t, strings.HasSuffix(a.Text, `[2] "Article 21. No person shall be deprived of life or personal liberty." from indian-constitution.pdf (pages 9-9)`))
	assert.Contains(t, a.Text, "\n\n**Citations:**\n[1] ")

	require.Len(t, comp.requests, 1)
	req := comp.requests[0]
	assert.Contains(t, req.SystemInstruction, "Answer in English.")
	assert.Contains(t, req.ContextText, "[S1] (indian-constitution.pdf, pages 9-9)")
	assert.Contains(t, req.ContextText, "[S2] (indian-constitution.pdf, pages 6-6)")
}

func TestService_UnknownLanguageShortCircuits(t *testing.T) {
	t.Parallel()
	r := &fakeRetriever{result: twoHits()}
	comp := &scriptedCompleter{reply: echoMarkers}
	svc, err := NewService(r, comp, nil, fastConfig(), nil)
	require.NoError(t, err)

	a, err := svc.Ask(context.Background(), nil, "qapla'?", "Klingon")
	require.NoError(t, err)
	assert.False(t, a.Supported)
	assert.Contains(t, a.Text, `"Klingon" is not yet supported`)
	assert.Empty(t, a.Citations)
	assert.Zero(t, r.calls)
	assert.Zero(t, comp.calls)
}

func TestService_UnbuiltLanguageIsLocalised(t *testing.T) {
	t.Parallel()
	comp := &scriptedCompleter{reply: echoMarkers}
	lookup := &fakeLookup{built: map[string]bool{"constitution_english": true}}
	svc, err := NewService(&fakeRetriever{result: twoHits()}, comp, lookup, fastConfig(), nil)
	require.NoError(t, err)

	a, err := svc.Ask(context.Background(), nil, "अनुच्छेद 21 क्या है?", "Hindi")
	require.NoError(t, err)
	assert.False(t, a.Supported)
	assert.Equal(t, notSupported[corpus.Hindi], a.Text)
	assert.Zero(t, comp.calls)

	a, err = svc.Ask(context.Background(), nil, "Article 21?", "English")
	require.NoError(t, err)
	assert.True(t, a.Supported)
}

func TestService_LookupErrorDoesNotBlockAnswers(t *testing.T) {
	t.Parallel()
	svc, err := NewService(&fakeRetriever{result: twoHits()}, &scriptedCompleter{reply: echoMarkers},
		&fakeLookup{err: errors.New("database is locked")}, fastConfig(), nil)
	require.NoError(t, err)
	a, err := svc.Ask(context.Background(), nil, "Article 21?", "English")
	require.NoError(t, err)
	assert.True(t, a.Supported)
}

func TestService_EmptyRetrievalStillAsksModel(t *testing.T) {
	t.Parallel()
	comp := &scriptedCompleter{reply: func(Request) Completion {
		return Completion{Text: "The documents do not cover this."}
	}}
	svc, err := NewService(&fakeRetriever{}, comp, nil, fastConfig(), nil)
	require.NoError(t, err)

	a, err := svc.Ask(context.Background(), nil, "Who won the 1983 world cup?", "English")
	require.NoError(t, err)
	assert.Equal(t, "The documents do not cover this.", a.Text)
	require.Len(t, comp.requests, 1)
	assert.Contains(t, comp.requests[0].ContextText, noContext)
}

func TestService_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	comp := &scriptedCompleter{failures: 2, reply: echoMarkers}
	cfg := fastConfig()
	cfg.MaxRetries = 2
	svc, err := NewService(&fakeRetriever{result: twoHits()}, comp, nil, cfg, nil)
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), nil, "Article 14?", "English")
	require.NoError(t, err)
	assert.Equal(t, 3, comp.calls)
}

func TestService_RetriesAreBounded(t *testing.T) {
	t.Parallel()
	comp := &scriptedCompleter{failures: 100, reply: echoMarkers}
	cfg := fastConfig()
	cfg.MaxRetries = 3
	svc, err := NewService(&fakeRetriever{result: twoHits()}, comp, nil, cfg, nil)
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), nil, "Article 14?", "English")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompletion))
	assert.Equal(t, 4, comp.calls, "one attempt plus three retries")
}

func TestService_AttemptTimeout(t *testing.T) {
	t.Parallel()
	comp := &scriptedCompleter{block: true}
	cfg := fastConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = -1
	svc, err := NewService(&fakeRetriever{result: twoHits()}, comp, nil, cfg, nil)
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), nil, "Article 14?", "English")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompletion))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, comp.calls)
}

func TestService_CancelledRequestIsNotRetried(t *testing.T) {
	t.Parallel()
	comp := &scriptedCompleter{block: true}
	cfg := fastConfig()
	cfg.MaxRetries = 5
	svc, err := NewService(&fakeRetriever{result: twoHits()}, comp, nil, cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = svc.Ask(ctx, nil, "Article 14?", "English")
	require.Error(t, err)
	assert.Equal(t, 1, comp.calls)
}

func TestService_ConversationCarriesHistory(t *testing.T) {
	t.Parallel()
	comp := &scriptedCompleter{reply: echoMarkers}
	svc, err := NewService(&fakeRetriever{result: twoHits()}, comp, nil, fastConfig(), nil)
	require.NoError(t, err)

	conv := NewConversation(Turn{Question: "What is Article 14?", Answer: "Equality before law."})
	_, err = svc.Ask(context.Background(), conv, "And Article 21?", "English")
	require.NoError(t, err)

	require.Len(t, comp.requests, 1)
	assert.Equal(t, []Turn{{Question: "What is Article 14?", Answer: "Equality before law."}}, comp.requests[0].History)
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, "And Article 21?", conv.Turns()[1].Question)
	assert.NotContains(t, conv.Turns()[1].Answer, "**Citations:**")
}

func TestService_EmptyQuestion(t *testing.T) {
	t.Parallel()
	svc, err := NewService(&fakeRetriever{}, &scriptedCompleter{reply: echoMarkers}, nil, nil, nil)
	require.NoError(t, err)
	_, err = svc.Ask(context.Background(), nil, "   ", "English")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestNewService_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewService(nil, &scriptedCompleter{}, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewService(&fakeRetriever{}, nil, nil, nil, nil)
	assert.Error(t, err)

	svc, err := NewService(&fakeRetriever{}, &scriptedCompleter{}, nil, &Config{MaxRetries: -1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, svc.cfg.MaxRetries)
	assert.Equal(t, DefaultTimeout, svc.cfg.Timeout)
}

func TestConversation_Bounds(t *testing.T) {
	t.Parallel()
	var turns []Turn
	for i := range DefaultMaxTurns + 3 {
		turns = append(turns, Turn{Question: fmt.Sprintf("q%d", i), Answer: "a"})
	}
	turns = append(turns, Turn{Question: "", Answer: "dropped"})
	c := NewConversation(turns...)
	assert.Equal(t, DefaultMaxTurns, c.Len())
	assert.Equal(t, "q3", c.Turns()[0].Question)

	var nilConv *Conversation
	assert.Nil(t, nilConv.Within(100))
	assert.Zero(t, nilConv.Len())
}

func TestConversation_WithinDropsOldestWholeTurns(t *testing.T) {
	t.Parallel()
	c := NewConversation(
		Turn{Question: strings.Repeat("x", 400), Answer: strings.Repeat("y", 400)},
		Turn{Question: "recent", Answer: "short"},
	)
	got := c.Within(40)
	require.Len(t, got, 1)
	assert.Equal(t, "recent", got[0].Question)
	assert.Len(t, c.Within(10000), 2)
}
