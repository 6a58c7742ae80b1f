// Package cli provides the cobra command surface for kapsel: capturing
// content, inspecting envelopes and receipts, and driving cloud sync.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/mfme-labs/kapsel/internal/logger"
)

// version is injected by Execute.
var version = "dev"

// Persistent flags.
var (
	flagVerbose   bool
	flagConfigDir string
	flagDataDir   string
)

var rootCmd = &cobra.Command{
	Use:   "kapsel",
	Short: "Idempotent capture with an auditable telemetry trail",
	Long: `kapsel captures content into a local content-addressed store,
records every attempt as a canonical telemetry receipt, and synchronises
payloads to a remote drive with verification and reconciliation.

Identical content is stored exactly once, locally and remotely, no
matter how often it is captured.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(flagVerbose)
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return bootstrap(cmd.Context())
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"Enable verbose debug output")
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "",
		"Configuration directory (default ~/.kapsel)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "",
		"Data directory for payloads, database and telemetry (default ~/.kapsel/data)")
}

// Execute runs the root command.
func Execute(v string) error {
	if v != "" {
		version = v
	}
	return rootCmd.Execute()
}
