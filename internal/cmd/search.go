package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wipcomputer/memory-crystal/pkg/crystal"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

var (
	searchLimit      int
	searchAgentID    string
	searchSourceType string
	searchRole       string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid BM25 + vector search with recency weighting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum results")
	searchCmd.Flags().StringVar(&searchAgentID, "agent-id", "", "restrict results to one agent id")
	searchCmd.Flags().StringVar(&searchSourceType, "source-type", "", "restrict results to one source type")
	searchCmd.Flags().StringVar(&searchRole, "role", "", "restrict results to one role")
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, eng crystal.Engine) error {
		var filter *store.Filter
		if searchAgentID != "" || searchSourceType != "" || searchRole != "" {
			filter = &store.Filter{AgentID: searchAgentID, SourceType: searchSourceType, Role: searchRole}
		}

		results, err := eng.Search(ctx, args[0], searchLimit, filter)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(results) == 0 {
			fmt.Println("no results")
			return nil
		}
		for i, r := range results {
			fmt.Printf("%d. [%s, %.4f, %s] %s\n", i+1, r.FreshnessLabel, r.Score, r.CreatedAt, r.Text)
		}
		return nil
	})
}
