package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Audit local bindings against the remote store",
	Long: `Runs one reconciliation sweep: orphaned bindings are removed,
unbound envelopes with a remote copy are rebound, and bound envelopes
whose remote object vanished are rebound by content hash or reported
missing. The sweep is idempotent and safe to repeat.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	report, err := syncEngine.Reconcile(cmd.Context())
	switch {
	case errors.Is(err, domain.ErrNoAccount):
		return fmt.Errorf("no cloud account configured; run 'kapsel auth login' first")
	case errors.Is(err, domain.ErrReconcileInProgress):
		return fmt.Errorf("a reconciliation sweep is already running")
	case err != nil:
		return fmt.Errorf("reconcile: %w", err)
	}

	cmd.Printf("Reconciliation complete.\n")
	cmd.Printf("  Orphaned bindings removed: %d\n", report.OrphansRemoved)
	cmd.Printf("  Rebound by content hash:   %d\n", report.Rebound)
	cmd.Printf("  Confirmed intact:          %d\n", report.Confirmed)
	cmd.Printf("  Missing remotely:          %d\n", report.Missing)
	return nil
}
