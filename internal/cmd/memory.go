package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wipcomputer/memory-crystal/pkg/crystal"
	"github.com/wipcomputer/memory-crystal/pkg/store"
)

var rememberCategory string

var rememberCmd = &cobra.Command{
	Use:   "remember <text>",
	Short: "Record an explicit, durable memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemember,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <memory-id>",
	Short: "Mark a memory as deprecated",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	rememberCmd.Flags().StringVar(&rememberCategory, "category", store.CategoryFact, "memory category")
}

func runRemember(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, eng crystal.Engine) error {
		mem, err := eng.Remember(ctx, args[0], rememberCategory)
		if err != nil {
			return fmt.Errorf("remember failed: %w", err)
		}
		fmt.Printf("remembered %s (%s)\n", mem.ID, mem.Category)
		return nil
	})
}

func runForget(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, eng crystal.Engine) error {
		changed, err := eng.Forget(ctx, args[0])
		if err != nil {
			return fmt.Errorf("forget failed: %w", err)
		}
		if !changed {
			fmt.Println("no matching active memory")
			return nil
		}
		fmt.Println("forgotten")
		return nil
	})
}
