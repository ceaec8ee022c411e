package commands

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/icrag-go/internal/answer"
	"github.com/54b3r/icrag-go/internal/corpus"
	"github.com/54b3r/icrag-go/internal/logging"
)

// NewAskCmd constructs the `icrag ask` command, which answers a single
// question and prints the cited answer to stdout.
func NewAskCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the Indian Constitution",
		Long: `Answer one question from the ingested constitution documents.

The question is answered in the selected language from that language's
collection. The answer ends with a numbered citations block quoting the
passages it relies on.

Examples:
  icrag ask "What does Article 21 guarantee?"
  icrag ask --language Hindi "अनुच्छेद 14 क्या कहता है?"
  MODEL_PROVIDER=ollama icrag ask "Who appoints the Chief Election Commissioner?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			a, err := buildApp(ctx, loadedConfig, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.close()

			ans, err := a.service.Ask(ctx, answer.NewConversation(), strings.Join(args, " "), language)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", string(corpus.English), "Answer language")

	return cmd
}
