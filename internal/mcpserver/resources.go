package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/54b3r/icrag-go/internal/corpus"
)

// uriScheme is the URI scheme for icrag resources.
const uriScheme = "icrag://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "collections",
		Name:        "collections",
		Description: "Live per-language collections with chunk counts and embedder versions",
		MIMEType:    "application/json",
	}, s.handleCollectionsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "faq/{kind}",
		Name:        "faq",
		Description: "Suggested questions (kind: constitution or amendment)",
		MIMEType:    "application/json",
	}, s.handleFAQResource)
}

// collectionInfo is the JSON shape of one collection resource entry.
type collectionInfo struct {
	Name            string `json:"name"`
	Language        string `json:"language"`
	Count           int    `json:"count"`
	EmbedderVersion string `json:"embedder_version"`
}

// handleCollectionsResource returns the live collections as JSON.
func (s *Server) handleCollectionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	infos := []collectionInfo{}
	if s.cfg.Collections != nil {
		cs, err := s.cfg.Collections.ListCollections(ctx)
		if err != nil {
			return nil, fmt.Errorf("mcpserver: list collections: %w", err)
		}
		for _, c := range cs {
			infos = append(infos, collectionInfo{
				Name:            c.Name,
				Language:        c.Language,
				Count:           c.Count,
				EmbedderVersion: c.EmbedderVersion,
			})
		}
	}
	return jsonResult(req.Params.URI, infos)
}

// handleFAQResource returns one FAQ list as JSON.
func (s *Server) handleFAQResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	kind := extractFAQKind(req.Params.URI)
	if kind == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	qs, err := corpus.FAQ(corpus.FAQKind(kind))
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResult(req.Params.URI, qs)
}

// extractFAQKind returns the {kind} segment of icrag://faq/{kind}, or "".
func extractFAQKind(uri string) string {
	prefix := uriScheme + "faq/"
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	kind := strings.TrimPrefix(uri, prefix)
	if kind == "" || strings.Contains(kind, "/") {
		return ""
	}
	return kind
}

// jsonResult wraps v as a single JSON resource content.
func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
