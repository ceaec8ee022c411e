package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/icrag-go/internal/answer"
	"github.com/54b3r/icrag-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds one question from receipt to answer, including every
	// completion retry (default: 5m).
	AskTimeout time.Duration
	// HeartbeatInterval is how often /api/ask/stream emits a "working"
	// status event while the answer is pending (default: 3s).
	HeartbeatInterval time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the ask
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MCPHandler, when set, is mounted at /mcp.
	MCPHandler http.Handler
	// MetricsRegistry receives the server metrics.
	// Defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served at /metrics.
	// Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Asker answers one question. *answer.Service satisfies it; tests inject a
// fake.
type Asker interface {
	// Ask answers question in language with conv as prior context.
	Ask(ctx context.Context, conv *answer.Conversation, question, language string) (*answer.Answer, error)
}

// CollectionLister reports the live collections. rag.VectorStore satisfies it.
type CollectionLister interface {
	// ListCollections returns every live collection.
	ListCollections(ctx context.Context) ([]rag.Collection, error)
}

// Server is the HTTP front end over the answer service.
type Server struct {
	// asker answers questions.
	asker Asker
	// collections lists the live per-language collections.
	collections CollectionLister
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by the server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask and /api/ask/stream.
type askRequest struct {
	// Question is the user's question.
	Question string `json:"question"`
	// Language is the display name of the answer language, e.g. "Hindi".
	Language string `json:"language"`
	// History is the prior conversation the client holds, oldest first.
	History []answer.Turn `json:"history,omitempty"`
}

// citationResponse is one numbered footnote in an answer.
type citationResponse struct {
	// Marker is the footnote number shown in the answer body.
	Marker int `json:"marker"`
	// Quote is the cited passage.
	Quote string `json:"quote"`
	// Source is the human label of the cited document.
	Source string `json:"source,omitempty"`
	// SourceID identifies the cited chunk or file.
	SourceID string `json:"source_id,omitempty"`
}

// askResponse is the JSON body returned for an answered question.
type askResponse struct {
	// Question echoes the question that was answered.
	Question string `json:"question"`
	// Language is the resolved answer language.
	Language string `json:"language"`
	// Supported is false when the language has no built collection.
	Supported bool `json:"supported"`
	// Answer is the body followed by the formatted citations block.
	Answer string `json:"answer"`
	// Body is the answer with numbered markers and no citations block.
	Body string `json:"body"`
	// Citations are the numbered footnotes in marker order.
	Citations []citationResponse `json:"citations"`
	// Collection is the collection that grounded the answer.
	Collection string `json:"collection,omitempty"`
	// History is the conversation including this turn, for the client to
	// send back with its next question.
	History []answer.Turn `json:"history"`
}

// errorResponse is the JSON body for a failed request. Question is echoed so
// the client can resubmit it.
type errorResponse struct {
	// Error is a user-safe message.
	Error string `json:"error"`
	// Question is the question that failed, when one was received.
	Question string `json:"question,omitempty"`
}

// languageResponse describes one supported language.
type languageResponse struct {
	// Name is the display name, e.g. "Telugu".
	Name string `json:"name"`
	// Collection is the logical collection name for the language.
	Collection string `json:"collection"`
	// Built reports whether the collection is live.
	Built bool `json:"built"`
}

// collectionResponse describes one live collection.
type collectionResponse struct {
	// Name is the logical collection name.
	Name string `json:"name"`
	// Language is the collection's language.
	Language string `json:"language"`
	// Count is the number of chunks stored.
	Count int `json:"count"`
	// EmbedderVersion is the embedder that built the collection.
	EmbedderVersion string `json:"embedder_version"`
	// CreatedAt is when the live generation was created.
	CreatedAt time.Time `json:"created_at"`
}

// faqResponse is the JSON body for GET /api/faq.
type faqResponse struct {
	// Kind is the list that was returned.
	Kind string `json:"kind"`
	// Questions are the suggested prompts.
	Questions []string `json:"questions"`
}
