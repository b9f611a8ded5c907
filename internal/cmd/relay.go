package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wipcomputer/memory-crystal/pkg/crypto"
	"github.com/wipcomputer/memory-crystal/pkg/embedding"
	"github.com/wipcomputer/memory-crystal/pkg/ingest"
	"github.com/wipcomputer/memory-crystal/pkg/privatemode"
	"github.com/wipcomputer/memory-crystal/pkg/relay"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Push conversation blobs to the dead drop, or drain them on the home node",
}

var relayPollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one home-node poll of the conversations channel",
	Args:  cobra.NoArgs,
	RunE:  runRelayPoll,
}

func init() {
	relayCmd.AddCommand(relayPollCmd)
}

func runRelayPoll(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	key, err := crypto.LoadKey(filepath.Join(cfg.DataDir, "master.key"))
	if err != nil {
		return err
	}
	client := relay.New(cfg.RelayURL, cfg.RelayToken, key)

	s, err := store.Open(filepath.Join(cfg.DataDir, "crystal.db"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	embedder, err := embedding.New(embedding.Config{
		Provider: cfg.EmbeddingProvider, APIKey: cfg.EmbeddingAPIKey, Model: cfg.EmbeddingModel, BaseURL: cfg.LocalHTTPHost,
	})
	if err != nil {
		return fmt.Errorf("constructing embedding client: %w", err)
	}

	pipe := ingest.New(s, embedder, time.Now)
	gate := privatemode.New(privatemode.Path(cfg.DataDir))
	poller := relay.NewPoller(client, pipe, gate)
	if err := poller.PollOnce(cmd.Context()); err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}
	fmt.Println("poll complete")
	return nil
}
