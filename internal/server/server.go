// Package server implements the HTTP API that answers constitution questions
// over JSON and Server-Sent Events. It is started by the `icrag serve` CLI
// command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/icrag-go/internal/answer"
	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/logging"
	"github.com/54b3r/icrag-go/internal/version"
)

// maxBodyBytes bounds the JSON request body, history included.
const maxBodyBytes = 1 << 20

// New constructs a Server over a and collections. collections may be nil, in
// which case no language reports a built collection.
func New(a Asker, collections CollectionLister, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: asker must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast the slowest answer on the JSON endpoint.
		cfg.WriteTimeout = cfg.AskTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 3 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		asker:       a,
		collections: collections,
		cfg:         cfg,
		log:         log,
		pingers:     cfg.Pingers,
		metrics:     newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stopRL := newAskLimiter(cfg.RateLimit, cfg.RateBurst)
	s.stopRL = stopRL

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      requestLogger(log, s.metrics, s.routes(rl)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// ListenAddr returns host:port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// routes builds the request multiplexer. The ask endpoints are rate limited
// per client IP; everything else is not.
func (s *Server) routes(rl *askLimiter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", rl.middleware(http.HandlerFunc(s.handleAsk)))
	mux.Handle("POST /api/ask/stream", rl.middleware(http.HandlerFunc(s.handleAskStream)))
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("GET /api/faq", s.handleFAQ)
	mux.HandleFunc("GET /api/collections", s.handleCollections)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	if s.cfg.MCPHandler != nil {
		mux.Handle("/mcp", s.cfg.MCPHandler)
	}
	return mux
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	}
}

// handleAsk handles POST /api/ask. The answer is returned as one JSON body.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}
	log := logging.FromContext(r.Context()).With(slog.String("language", req.Language))

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	start := time.Now()
	conv := answer.NewConversation(req.History...)
	ans, err := s.asker.Ask(ctx, conv, req.Question, req.Language)
	if err != nil {
		status, outcome := classify(err)
		s.metrics.observeAsk("ask", outcome, time.Since(start))
		log.Error("ask failed", slog.String("outcome", outcome), slog.Any("error", err))
		writeJSON(w, status, errorResponse{Error: userError(status), Question: req.Question})
		return
	}
	s.metrics.observeAsk("ask", outcomeOf(ans), time.Since(start))
	writeJSON(w, http.StatusOK, toResponse(ans, conv))
}

// handleAskStream handles POST /api/ask/stream. It emits a "status" event
// immediately and every HeartbeatInterval until the answer is ready, then a
// single "answer" or "error" event.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAsk(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming not supported", Question: req.Question})
		return
	}
	log := logging.FromContext(r.Context()).With(slog.String("language", req.Language))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	sw := &sseWriter{w: w, flusher: flusher}

	s.metrics.activeStreams.Inc()
	defer s.metrics.activeStreams.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	type result struct {
		ans *answer.Answer
		err error
	}
	start := time.Now()
	conv := answer.NewConversation(req.History...)
	done := make(chan result, 1)
	go func() {
		ans, err := s.asker.Ask(ctx, conv, req.Question, req.Language)
		done <- result{ans: ans, err: err}
	}()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	if err := sw.event("status", []byte("working")); err != nil {
		log.Warn("stream write failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ticker.C:
			if err := sw.event("status", []byte("working")); err != nil {
				// Client went away; Ask sees the cancelled request context.
				log.Debug("heartbeat write failed", slog.Any("error", err))
			}
		case res := <-done:
			if res.err != nil {
				status, outcome := classify(res.err)
				s.metrics.observeAsk("stream", outcome, time.Since(start))
				log.Error("ask failed", slog.String("outcome", outcome), slog.Any("error", res.err))
				_ = sw.json("error", errorResponse{Error: userError(status), Question: req.Question})
				return
			}
			s.metrics.observeAsk("stream", outcomeOf(res.ans), time.Since(start))
			if err := sw.json("answer", toResponse(res.ans, conv)); err != nil {
				log.Warn("stream write failed", slog.Any("error", err))
			}
			return
		}
	}
}

// handleLanguages handles GET /api/languages.
func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	built := make(map[string]bool)
	if s.collections != nil {
		cs, err := s.collections.ListCollections(r.Context())
		if err != nil {
			logging.FromContext(r.Context()).Warn("list collections failed", slog.Any("error", err))
		}
		for _, c := range cs {
			built[c.Name] = true
		}
	}
	out := make([]languageResponse, 0, len(corpus.All()))
	for _, l := range corpus.All() {
		name := corpus.CollectionName(l)
		out = append(out, languageResponse{Name: string(l), Collection: name, Built: built[name]})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleFAQ handles GET /api/faq?kind=constitution|amendment. kind defaults
// to constitution.
func (s *Server) handleFAQ(w http.ResponseWriter, r *http.Request) {
	kind := corpus.FAQKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = corpus.FAQConstitution
	}
	qs, err := corpus.FAQ(kind)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, faqResponse{Kind: string(kind), Questions: qs})
}

// handleCollections handles GET /api/collections.
func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	out := []collectionResponse{}
	if s.collections != nil {
		cs, err := s.collections.ListCollections(r.Context())
		if err != nil {
			logging.FromContext(r.Context()).Error("list collections failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "collections unavailable"})
			return
		}
		for _, c := range cs {
			out = append(out, collectionResponse{
				Name:            c.Name,
				Language:        c.Language,
				Count:           c.Count,
				EmbedderVersion: c.EmbedderVersion,
				CreatedAt:       c.CreatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

// decodeAsk reads and validates an ask body. On failure it writes a 400 and
// returns false.
func decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return req, false
	}
	if req.Question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return req, false
	}
	if req.Language == "" {
		req.Language = string(corpus.English)
	}
	return req, true
}

// classify maps an Ask error to an HTTP status and a metric outcome.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, answer.ErrEmptyQuestion):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusBadGateway, "error"
	}
}

// userError is the message shown for a failed Ask. Internal errors are
// never exposed.
func userError(status int) string {
	if status == http.StatusBadRequest {
		return "question is required"
	}
	return answer.UserMessage
}

// outcomeOf labels a successful Ask for metrics.
func outcomeOf(a *answer.Answer) string {
	if !a.Supported {
		return "unsupported"
	}
	return "ok"
}

// toResponse renders an answer and the conversation it extended.
func toResponse(a *answer.Answer, conv *answer.Conversation) askResponse {
	cites := make([]citationResponse, len(a.Citations))
	for i, c := range a.Citations {
		cites[i] = citationResponse{Marker: c.Marker, Quote: c.Quote, Source: c.SourceLabel, SourceID: c.SourceID}
	}
	return askResponse{
		Question:   a.Question,
		Language:   a.Language,
		Supported:  a.Supported,
		Answer:     a.Text,
		Body:       a.Body,
		Citations:  cites,
		Collection: a.Collection,
		History:    conv.Turns(),
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
