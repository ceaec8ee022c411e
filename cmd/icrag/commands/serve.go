package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/icrag-go/internal/logging"
	"github.com/54b3r/icrag-go/internal/mcpserver"
	"github.com/54b3r/icrag-go/internal/server"
)

// NewServeCmd constructs the `icrag serve` command, which starts the HTTP
// question answering API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var withMCP bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the icrag HTTP API",
		Long: `Start the icrag HTTP server.

Endpoints:
  POST /api/ask          answer a question (JSON)
  POST /api/ask/stream   answer a question over server-sent events
  GET  /api/languages    supported languages and whether each is ingested
  GET  /api/faq          canned questions (?kind=constitution|amendment)
  GET  /api/collections  live collections with chunk counts
  GET  /api/health       liveness
  GET  /api/ready        readiness of the store and model backend
  GET  /metrics          Prometheus metrics
  /mcp                   MCP over streamable HTTP (with --mcp)

Examples:
  icrag serve
  icrag serve --port 9090 --mcp
  ICRAG_STORE=qdrant icrag serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)
			cfg := loadedConfig

			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			a, err := buildApp(ctx, cfg, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.close()

			srvCfg := &server.Config{
				Host:      cfg.Server.Host,
				Port:      cfg.Server.Port,
				Logger:    log,
				Pingers:   a.pingers,
				RateLimit: cfg.Server.RateLimit,
				RateBurst: cfg.Server.RateBurst,
			}
			if withMCP {
				m, err := mcpserver.New(mcpserver.Config{
					Asker:       a.service,
					Collections: a.store,
					Logger:      log,
				})
				if err != nil {
					return fmt.Errorf("serve: failed to create MCP server: %w", err)
				}
				srvCfg.MCPHandler = m.Handler()
				log.Info("mcp endpoint enabled", slog.String("path", "/mcp"))
			}

			srv, err := server.New(a.service, a.store, srvCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "Also serve MCP over streamable HTTP at /mcp")

	return cmd
}
