package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wipcomputer/memory-crystal/pkg/privatemode"
)

var privateModeCmd = &cobra.Command{
	Use:   "private-mode",
	Short: "Inspect or toggle the private-mode capture gate",
}

var privateModeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether capture is currently permitted",
	Args:  cobra.NoArgs,
	RunE:  runPrivateModeStatus,
}

var privateModeOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Disable capture and explicit memory writes",
	Args:  cobra.NoArgs,
	RunE:  runPrivateModeSet(false),
}

var privateModeOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Re-enable capture and explicit memory writes",
	Args:  cobra.NoArgs,
	RunE:  runPrivateModeSet(true),
}

func init() {
	privateModeCmd.AddCommand(privateModeStatusCmd)
	privateModeCmd.AddCommand(privateModeOnCmd)
	privateModeCmd.AddCommand(privateModeOffCmd)
}

func privateModeGate() (*privatemode.Gate, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, fmt.Errorf("resolving config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return privatemode.New(privatemode.Path(cfg.DataDir)), nil
}

func runPrivateModeStatus(cmd *cobra.Command, args []string) error {
	gate, err := privateModeGate()
	if err != nil {
		return err
	}
	if gate.Enabled() {
		fmt.Println("capture enabled")
	} else {
		fmt.Println("capture disabled (private mode is on)")
	}
	return nil
}

// runPrivateModeSet returns a RunE that sets the capture-enabled flag
// to enabled; "on" (private mode on) means capture disabled, hence the
// inverted naming between the command and the flag it writes.
func runPrivateModeSet(enabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		gate, err := privateModeGate()
		if err != nil {
			return err
		}
		if err := gate.SetEnabled(enabled); err != nil {
			return fmt.Errorf("updating private-mode flag: %w", err)
		}
		if enabled {
			fmt.Println("capture enabled")
		} else {
			fmt.Println("capture disabled")
		}
		return nil
	}
}
