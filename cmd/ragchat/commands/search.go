package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/rag"
	"github.com/54b3r/ragchat-go/internal/store"
)

// NewSearchCmd constructs the `ragchat search` command, which prints stored
// messages similar to a free-text query.
func NewSearchCmd(a *app) *cobra.Command {
	var threshold float64
	var count int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find stored messages similar to a query",
		Long: `Embed a query and print the stored messages most similar to it as JSON.

Examples:
  ragchat search "horse racing"
  ragchat search --count 3 --threshold 0.5 "payday"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.log
			ctx := logging.WithLogger(cmd.Context(), log)

			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if cmd.Flags().Changed("threshold") {
				a.cfg.Search.SimilarityThreshold = threshold
			}
			if cmd.Flags().Changed("count") {
				a.cfg.Search.MatchCount = count
			}

			emb, err := newEmbedder(ctx, a.cfg, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			st, err := openStore(ctx, a.cfg, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer func() {
				if cerr := st.Close(); cerr != nil {
					log.Warn("search: failed to close store", slog.Any("error", cerr))
				}
			}()

			retriever, err := rag.NewRetriever(st)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			searcher := rag.NewSearcher(emb, retriever, a.cfg.Search.SimilarityThreshold, a.cfg.Search.MatchCount)

			matches, err := searcher.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err //nolint:wrapcheck // CLI entry point, error goes directly to cobra
			}
			if matches == nil {
				matches = []store.Match{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(matches)
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0.3, "Minimum similarity (overrides search.similarity_threshold)")
	cmd.Flags().IntVarP(&count, "count", "n", 10, "Maximum number of matches (overrides search.match_count)")

	return cmd
}
