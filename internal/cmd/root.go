// Package cmd is the thin cobra front-end over pkg/crystal. It is an
// external collaborator boundary: everything it does is a direct call
// into the substrate, with no logic of its own beyond flag parsing and
// output formatting.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wipcomputer/memory-crystal/pkg/config"
	"github.com/wipcomputer/memory-crystal/pkg/crystal"
	"github.com/wipcomputer/memory-crystal/pkg/embedding"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

var (
	// Version is set by cmd/crystal/main.go from build-time ldflags.
	Version string
	// BuildTime is set by cmd/crystal/main.go from build-time ldflags.
	BuildTime string

	dataDirFlag string
	agentFlag   string
	remoteFlag  bool
)

var rootCmd = &cobra.Command{
	Use:     "crystal",
	Short:   "Memory Crystal: a local-first memory substrate for conversational agents",
	Version: Version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "override the resolved data directory")
	rootCmd.PersistentFlags().StringVar(&agentFlag, "agent", "", "agent id attributed to writes from this invocation")
	rootCmd.PersistentFlags().BoolVar(&remoteFlag, "remote", false, "drive a remote engine over the configured relay URL instead of opening the store locally")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(relayCmd)
	rootCmd.AddCommand(mirrorCmd)
	rootCmd.AddCommand(privateModeCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("crystal version %s (built %s)\n", Version, BuildTime))
}

// resolveConfig builds a Config honoring the --data-dir and --agent
// overrides shared by every subcommand.
func resolveConfig() (config.Config, error) {
	overrides := map[string]string{}
	if dataDirFlag != "" {
		overrides["dataDir"] = dataDirFlag
	}
	if agentFlag != "" {
		overrides["agentId"] = agentFlag
	}
	return config.Resolve(overrides)
}

// openEngine resolves configuration and returns a ready crystal.Engine
// plus a close function releasing whatever it opened (a no-op for
// crystal.Remote, which owns no local resources).
func openEngine() (crystal.Engine, func() error, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving config: %w", err)
	}

	mode := crystal.ModeLocal
	if remoteFlag {
		mode = crystal.ModeRemote
	}

	if mode == crystal.ModeRemote {
		eng, err := crystal.New(mode, nil, nil, cfg, nil)
		if err != nil {
			return nil, nil, err
		}
		return eng, func() error { return nil }, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(cfg.DataDir, "crystal.db")
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store at %s: %w", dbPath, err)
	}

	embedder, err := embedding.New(embedding.Config{
		Provider: cfg.EmbeddingProvider,
		APIKey:   cfg.EmbeddingAPIKey,
		Model:    cfg.EmbeddingModel,
		BaseURL:  cfg.LocalHTTPHost,
	})
	if err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("constructing embedding client: %w", err)
	}

	eng, err := crystal.New(mode, s, embedder, cfg, time.Now)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return eng, s.Close, nil
}

func withEngine(fn func(ctx context.Context, eng crystal.Engine) error) error {
	eng, closeFn, err := openEngine()
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(context.Background(), eng)
}
