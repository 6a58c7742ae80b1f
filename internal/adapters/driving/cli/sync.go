package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

var syncCmd = &cobra.Command{
	Use:   "sync [content-hash]...",
	Short: "Upload envelopes to the remote store",
	Long: `Uploads envelopes to the remote drive. With content hashes as
arguments, only those envelopes are uploaded; otherwise every envelope
without a verified remote binding is uploaded.

Content already present remotely is bound without re-uploading bytes.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	hashes := args
	if len(hashes) == 0 {
		var err error
		hashes, err = pendingHashes(ctx)
		if err != nil {
			return err
		}
		if len(hashes) == 0 {
			cmd.Println("Nothing to upload.")
			return nil
		}
	}

	var failures int
	for _, hash := range hashes {
		code, err := syncEngine.UploadByHash(ctx, hash)
		switch {
		case err == nil:
			cmd.Printf("%s: %s\n", shortHash(hash), code)
		case errors.Is(err, domain.ErrNoAccount):
			return fmt.Errorf("no cloud account configured; run 'kapsel auth login' first")
		default:
			failures++
			cmd.PrintErrf("%s: %s: %v\n", shortHash(hash), code, err)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d uploads failed", failures, len(hashes))
	}
	return nil
}

// pendingHashes lists content hashes of envelopes without a binding.
func pendingHashes(ctx context.Context) ([]string, error) {
	envelopes, err := store.EnvelopeStore().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing envelopes: %w", err)
	}

	var hashes []string
	for _, env := range envelopes {
		_, err := store.CloudBindingStore().FindByEnvelope(ctx, env.ID)
		if errors.Is(err, domain.ErrNotFound) {
			hashes = append(hashes, env.ContentHash)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("looking up binding for envelope %d: %w", env.ID, err)
		}
	}
	return hashes, nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
