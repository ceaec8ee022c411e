package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/icrag-go/internal/logging"
	"github.com/54b3r/icrag-go/internal/mcpserver"
)

// NewMCPCmd constructs the `icrag mcp` command, which serves the MCP tools
// over stdio for desktop assistants and editors.
func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the question answering tools over MCP stdio",
		Long: `Run an MCP server on stdin/stdout.

Tools:
  ask_question    answer a question with citations
  list_languages  supported languages and their collections
  faq             canned questions by kind

Resources:
  icrag://collections   live collections
  icrag://faq/{kind}    canned questions

Logs go to stderr so they never corrupt the protocol stream.

Example client entry:
  {"command": "icrag", "args": ["mcp"]}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			a, err := buildApp(ctx, loadedConfig, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer a.close()

			s, err := mcpserver.New(mcpserver.Config{
				Asker:       a.service,
				Collections: a.store,
				Logger:      log,
			})
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			log.Info("mcp server running on stdio")
			return s.Run(ctx)
		},
	}
}
