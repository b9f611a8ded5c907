package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wipcomputer/memory-crystal/pkg/crystal"
	"github.com/wipcomputer/memory-crystal/pkg/ingest"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

var (
	ingestSourceID string
	ingestRole     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Chunk and ingest a single file as a manual source",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSourceID, "source-id", "", "source id recorded on every chunk (defaults to the file path)")
	ingestCmd.Flags().StringVar(&ingestRole, "role", store.RoleUser, "role recorded on every chunk")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	sourceID := ingestSourceID
	if sourceID == "" {
		sourceID = path
	}

	return withEngine(func(ctx context.Context, eng crystal.Engine) error {
		chunks := eng.ChunkText(string(data), 400, 80)
		candidates := make([]ingest.Candidate, len(chunks))
		for i, c := range chunks {
			candidates[i] = ingest.Candidate{
				Text: c, Role: ingestRole,
				SourceType: store.SourceTypeManual, SourceID: sourceID, AgentID: agentFlag,
			}
		}
		n, err := eng.Ingest(ctx, candidates)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		fmt.Printf("ingested %d of %d chunk(s) from %s\n", n, len(candidates), path)
		return nil
	})
}
