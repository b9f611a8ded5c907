package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wipcomputer/memory-crystal/pkg/embedding"
	"github.com/wipcomputer/memory-crystal/pkg/ingest"
	"github.com/wipcomputer/memory-crystal/pkg/privatemode"
	"github.com/wipcomputer/memory-crystal/pkg/sourceindex"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

var (
	syncRoot         string
	syncIncludeGlobs []string
	syncIgnoreGlobs  []string
	syncDryRun       bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <collection>",
	Short: "Reconcile a collection's indexed files against what is on disk",
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncRoot, "root", "", "collection root path (required the first time a collection is synced)")
	syncCmd.Flags().StringSliceVar(&syncIncludeGlobs, "include", nil, "glob patterns to include")
	syncCmd.Flags().StringSliceVar(&syncIgnoreGlobs, "ignore", nil, "glob patterns to ignore")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report changes without writing them")
}

func runSync(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := resolveConfig()
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	gate := privatemode.New(privatemode.Path(cfg.DataDir))
	if !gate.Enabled() {
		fmt.Println("private mode is on; skipping sync")
		return nil
	}

	s, err := store.Open(filepath.Join(cfg.DataDir, "crystal.db"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	if _, err := s.GetCollection(cmd.Context(), name); err != nil {
		if syncRoot == "" {
			return fmt.Errorf("collection %q is not indexed yet; pass --root to create it", name)
		}
		if err := s.PutCollection(cmd.Context(), store.Collection{
			Name: name, RootPath: syncRoot, IncludeGlobs: syncIncludeGlobs, IgnoreGlobs: syncIgnoreGlobs,
		}); err != nil {
			return fmt.Errorf("creating collection: %w", err)
		}
	}

	embedder, err := embedding.New(embedding.Config{
		Provider: cfg.EmbeddingProvider, APIKey: cfg.EmbeddingAPIKey, Model: cfg.EmbeddingModel, BaseURL: cfg.LocalHTTPHost,
	})
	if err != nil {
		return fmt.Errorf("constructing embedding client: %w", err)
	}

	pipe := ingest.New(s, embedder, time.Now)
	indexer := sourceindex.New(s, pipe, time.Now)

	result, err := indexer.Sync(cmd.Context(), name, syncDryRun)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Printf("added %d, updated %d, removed %d\n", result.Added, result.Updated, result.Removed)
	return nil
}
