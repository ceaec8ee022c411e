// Package mcpserver exposes the question answering service to MCP clients
// over stdio or streamable HTTP.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/icrag-go/internal/answer"
	"github.com/54b3r/icrag-go/internal/rag"
	"github.com/54b3r/icrag-go/internal/version"
)

// ErrMissingAsker is returned when no answer service is provided.
var ErrMissingAsker = errors.New("mcpserver: asker is required")

// defaultAskTimeout bounds one ask_question call.
const defaultAskTimeout = 5 * time.Minute

// Asker answers one question. *answer.Service satisfies it.
type Asker interface {
	// Ask answers question in language with conv as prior context.
	Ask(ctx context.Context, conv *answer.Conversation, question, language string) (*answer.Answer, error)
}

// CollectionLister reports the live collections. rag.VectorStore satisfies it.
type CollectionLister interface {
	// ListCollections returns every live collection.
	ListCollections(ctx context.Context) ([]rag.Collection, error)
}

// Config wires the MCP server.
type Config struct {
	// Asker answers questions. Required.
	Asker Asker
	// Collections lists live collections. Optional.
	Collections CollectionLister
	// AskTimeout bounds one ask_question call (default: 5m).
	AskTimeout time.Duration
	// Logger receives tool errors. Defaults to slog.Default.
	Logger *slog.Logger
}

// Server is the MCP server for icrag.
type Server struct {
	cfg    Config
	log    *slog.Logger
	server *mcp.Server
}

// New creates a Server and registers its tools and resources.
func New(cfg Config) (*Server, error) {
	if cfg.Asker == nil {
		return nil, ErrMissingAsker
	}
	if cfg.AskTimeout <= 0 {
		cfg.AskTimeout = defaultAskTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg: cfg,
		log: log,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "icrag",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: stdio: %w", err)
	}
	return nil
}

// Handler returns a streamable HTTP handler for mounting under /mcp.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}
