package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/icrag-go/internal/embedder"
	"github.com/54b3r/icrag-go/internal/logging"
	"github.com/54b3r/icrag-go/internal/rag"
)

// NewCollectionsCmd constructs the `icrag collections` command, which lists
// the live per-language collections in the index store.
func NewCollectionsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List the ingested collections",
		Long: `List every live collection with its language, chunk count, the embedder
that built it, and when it was published.

A collection built by a different embedder than the one currently configured
is flagged; questions against it fail until it is re-ingested.

Examples:
  icrag collections
  icrag collections --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			vs, _, err := openStore(ctx, loadedConfig, log)
			if err != nil {
				return fmt.Errorf("collections: %w", err)
			}
			defer vs.Close()

			cols, err := vs.ListCollections(ctx)
			if err != nil {
				return fmt.Errorf("collections: %w", err)
			}
			sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cols)
			}

			current := ""
			if emb, err := embedder.NewFromEnv(); err == nil {
				current = emb.Version()
			}
			return writeCollections(cmd.OutOrStdout(), cols, current)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print collections as JSON")

	return cmd
}

// writeCollections renders cols as an aligned table. A non-empty current
// flags collections built by another embedder.
func writeCollections(w io.Writer, cols []rag.Collection, current string) error {
	if len(cols) == 0 {
		_, err := fmt.Fprintln(w, "no collections; run 'icrag ingest' first")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLANGUAGE\tCHUNKS\tEMBEDDER\tCREATED")
	for _, c := range cols {
		ver := c.EmbedderVersion
		if current != "" && ver != current {
			ver += " (stale)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", c.Name, c.Language, c.Count, ver, c.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
