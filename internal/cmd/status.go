package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wipcomputer/memory-crystal/pkg/crystal"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a snapshot of the store, capture progress, and effective config",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, eng crystal.Engine) error {
		snap, err := eng.Status(ctx)
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		fmt.Printf("data dir:          %s\n", snap.DataDir)
		fmt.Printf("embedding provider: %s\n", snap.EmbeddingProvider)
		fmt.Printf("chunks:            %d\n", snap.ChunkCount)
		fmt.Printf("active memories:   %d\n", snap.ActiveMemoryCount)
		fmt.Printf("source files:      %d\n", snap.SourceFileCount)
		fmt.Printf("captured sessions: %d (latest %s)\n", snap.CapturedSessions, snap.LatestCaptureAt)
		fmt.Printf("chunk time range:  %s .. %s\n", snap.OldestChunkAt, snap.NewestChunkAt)
		fmt.Printf("agents:            %s\n", strings.Join(snap.DistinctAgentIDs, ", "))
		return nil
	})
}
