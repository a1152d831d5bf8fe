package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragchat-go/internal/backfill"
	"github.com/54b3r/ragchat-go/internal/logging"
)

// NewBackfillCmd constructs the `ragchat backfill` command, which embeds
// every stored message that has no vector yet.
func NewBackfillCmd(a *app) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed stored messages that have no embedding",
		Long: `Page through stored messages without an embedding, oldest first, and
attach one to each. Rows that fail are reported and skipped.

Examples:
  ragchat backfill
  ragchat backfill --batch-size 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := a.log
			ctx := logging.WithLogger(cmd.Context(), log)

			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			emb, err := newEmbedder(ctx, a.cfg, log)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			st, err := openStore(ctx, a.cfg, log)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			defer func() {
				if cerr := st.Close(); cerr != nil {
					log.Warn("backfill: failed to close store", slog.Any("error", cerr))
				}
			}()

			runner, err := backfill.NewRunner(emb, st, &backfill.Config{BatchSize: batchSize})
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			res, err := runner.Run(ctx)
			if err != nil {
				return err //nolint:wrapcheck // CLI entry point, error goes directly to cobra
			}
			fmt.Fprintf(os.Stdout, "embedded %d message(s), %d failed\n", res.Embedded, res.Failed)
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "Rows fetched per page")

	return cmd
}
