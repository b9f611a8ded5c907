package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wipcomputer/memory-crystal/pkg/crypto"
	"github.com/wipcomputer/memory-crystal/pkg/mirror"
	"github.com/wipcomputer/memory-crystal/pkg/relay"
)

var mirrorForce bool

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Push a snapshot of the store to the mirror channel, or pull the latest one",
}

var mirrorPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Seal and drop the store file for devices to pull",
	Args:  cobra.NoArgs,
	RunE:  runMirrorPush,
}

var mirrorPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch and apply the latest mirror snapshot, if it changed",
	Args:  cobra.NoArgs,
	RunE:  runMirrorPull,
}

func init() {
	mirrorPullCmd.Flags().BoolVar(&mirrorForce, "force", false, "apply the snapshot even if its hash matches what is already mirrored")
	mirrorCmd.AddCommand(mirrorPushCmd)
	mirrorCmd.AddCommand(mirrorPullCmd)
}

func newMirror(dataDir, relayURL, relayToken string) (*mirror.Mirror, error) {
	key, err := crypto.LoadKey(filepath.Join(dataDir, "master.key"))
	if err != nil {
		return nil, err
	}
	client := relay.New(relayURL, relayToken, key)
	return mirror.New(client, key), nil
}

func runMirrorPush(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}
	m, err := newMirror(cfg.DataDir, cfg.RelayURL, cfg.RelayToken)
	if err != nil {
		return err
	}
	if err := m.Push(cmd.Context(), filepath.Join(cfg.DataDir, "crystal.db")); err != nil {
		return fmt.Errorf("mirror push failed: %w", err)
	}
	fmt.Println("pushed")
	return nil
}

func runMirrorPull(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	m, err := newMirror(cfg.DataDir, cfg.RelayURL, cfg.RelayToken)
	if err != nil {
		return err
	}
	dest := filepath.Join(cfg.DataDir, "mirror.db")
	statePath := filepath.Join(cfg.DataDir, "mirror.state.json")
	applied, err := m.Pull(cmd.Context(), dest, statePath, mirrorForce)
	if err != nil {
		return fmt.Errorf("mirror pull failed: %w", err)
	}
	if !applied {
		fmt.Println("already up to date")
		return nil
	}
	fmt.Printf("applied new mirror snapshot to %s\n", dest)
	return nil
}
