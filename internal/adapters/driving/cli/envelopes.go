package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

var envelopesCmd = &cobra.Command{
	Use:   "envelopes",
	Short: "List captured envelopes",
	RunE:  runEnvelopes,
}

var envelopesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one envelope in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnvelopesShow,
}

var (
	envelopesLimit  int
	envelopesOffset int
)

func init() {
	envelopesCmd.Flags().IntVar(&envelopesLimit, "limit", 50,
		"Maximum envelopes to show")
	envelopesCmd.Flags().IntVar(&envelopesOffset, "offset", 0,
		"Envelopes to skip from the newest")
	envelopesCmd.AddCommand(envelopesShowCmd)
	rootCmd.AddCommand(envelopesCmd)
}

func runEnvelopes(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	envelopes, err := store.EnvelopeStore().ListNewest(ctx, envelopesLimit, envelopesOffset)
	if err != nil {
		return fmt.Errorf("listing envelopes: %w", err)
	}
	if len(envelopes) == 0 {
		cmd.Println("No envelopes.")
		return nil
	}

	for _, env := range envelopes {
		label := env.Filename
		if label == "" && env.Text != "" {
			label = snippet(env.Text, 40)
		}
		bound := " "
		if _, err := store.CloudBindingStore().FindByEnvelope(ctx, env.ID); err == nil {
			bound = "☁"
		}
		cmd.Printf("%6d %s %s  %-10s %-24s %s\n",
			env.ID, bound, shortHash(env.ContentHash), env.SourceRef,
			env.ReceivedAt.Format("2006-01-02 15:04:05Z07:00"), label)
	}
	return nil
}

func runEnvelopesShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid envelope id %q", args[0])
	}

	env, err := store.EnvelopeStore().Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("envelope %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("loading envelope: %w", err)
	}

	cmd.Printf("Envelope %d\n", env.ID)
	cmd.Printf("  Content hash: %s\n", env.ContentHash)
	cmd.Printf("  MIME:         %s\n", valueOr(env.MIME, "-"))
	cmd.Printf("  Filename:     %s\n", valueOr(env.Filename, "-"))
	cmd.Printf("  Source:       %s\n", env.SourceRef)
	cmd.Printf("  Received:     %s\n", env.ReceivedAt.Format("2006-01-02T15:04:05Z07:00"))
	if env.Text != "" {
		cmd.Printf("  Text:         %s\n", snippet(env.Text, 200))
	}
	if env.MetaJSON != "" {
		cmd.Printf("  Metadata:     %s\n", env.MetaJSON)
	}
	cmd.Printf("  Local payload: %v\n", payloads.Exists(env.ContentHash))

	binding, err := store.CloudBindingStore().FindByEnvelope(ctx, env.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		cmd.Println("  Remote:        not uploaded")
	case err != nil:
		return fmt.Errorf("loading binding: %w", err)
	default:
		cmd.Printf("  Remote:        %s (uploaded %s)\n",
			binding.RemoteID, binding.UploadedAt.Format("2006-01-02T15:04:05Z07:00"))
		if binding.RemoteSize >= 0 {
			cmd.Printf("  Remote size:   %d bytes\n", binding.RemoteSize)
		}
	}

	count, err := store.TelemetryStore().CountForEnvelope(ctx, env.ID)
	if err == nil {
		cmd.Printf("  Receipts:      %d\n", count)
	}
	return nil
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
