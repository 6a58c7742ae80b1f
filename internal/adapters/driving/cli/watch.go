package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfme-labs/kapsel/internal/adapters/driving/watch"
	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/services"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Capture files dropped into a folder",
	Long: `Watches a folder and captures every file that appears in it,
running until interrupted. Upload workers and the periodic
reconciliation sweep run in the background while watching.

Dropping the same file twice is harmless: the duplicate collapses onto
the existing envelope and nothing is re-uploaded.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var watchWorkers int

func init() {
	watchCmd.Flags().IntVar(&watchWorkers, "workers", 0,
		"Upload worker count (default from config)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := configStore.Config()
	workers := watchWorkers
	if workers <= 0 {
		workers = cfg.Upload.Workers
	}

	scheduler := services.NewScheduler(syncEngine, uploadQueue,
		cfg.ReconcileInterval(0), workers)
	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- scheduler.Start(ctx)
	}()
	defer func() {
		scheduler.Stop()
		<-schedulerDone
	}()

	watcher := watch.NewWatcher(args[0], pipeline)
	watcher.OnResult = func(path string, outcome domain.SaveOutcome) {
		_ = printOutcome(cmd, path, outcome)
	}

	cmd.Printf("Watching %s (ctrl-c to stop)...\n", args[0])
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
