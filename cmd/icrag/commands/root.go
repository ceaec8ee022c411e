// Package commands defines all Cobra CLI commands for the icrag binary.
package commands

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/icrag-go/internal/audit"
	"github.com/54b3r/icrag-go/internal/config"
	"github.com/54b3r/icrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfig is the effective configuration resolved before every command.
var loadedConfig *config.Config

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "icrag",
		Short: "icrag: grounded answers about the Indian Constitution in eight languages",
		Long: `icrag answers questions about the Constitution of India and its amendments
in English, Hindi, Telugu, Tamil, Marathi, Gujarati, Kannada, and Malayalam.

Answers are grounded in the constitution documents ingested with 'icrag ingest'
and carry numbered citations to the passages they rely on.

Configuration is read from environment variables (a .env file is honoured)
and an optional YAML file (~/.icrag/config.yaml, or --config). Environment
variables always win over the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is the common case.
			_ = godotenv.Load()

			cfg, path, err := config.Load(configPath, logging.New())
			if err != nil {
				return err
			}
			loadedConfig = cfg

			// Rebuilt so LOG_LEVEL and LOG_FORMAT from the YAML file apply.
			log := logging.New()
			slog.SetDefault(log)
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			audit.LogCommandStart(log, cmd.Name(), args, path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.icrag/config.yaml)")

	root.AddCommand(
		NewIngestCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewMCPCmd(),
		NewCollectionsCmd(),
		NewVersionCmd(),
	)

	return root
}
