package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "List telemetry receipts",
	Long: `Lists telemetry receipts, newest first. Every capture, upload,
reconciliation and probe attempt leaves exactly one receipt; this is the
audit trail of everything the system has done.`,
	RunE: runReceipts,
}

var (
	receiptsErrors bool
	receiptsCode   string
	receiptsLimit  int
	receiptsOffset int
)

func init() {
	receiptsCmd.Flags().BoolVar(&receiptsErrors, "errors", false,
		"Show only failure receipts")
	receiptsCmd.Flags().StringVar(&receiptsCode, "code", "",
		"Show only receipts with this taxonomy code")
	receiptsCmd.Flags().IntVar(&receiptsLimit, "limit", 50,
		"Maximum receipts to show")
	receiptsCmd.Flags().IntVar(&receiptsOffset, "offset", 0,
		"Receipts to skip from the newest")
	rootCmd.AddCommand(receiptsCmd)
}

func runReceipts(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	telemetry := store.TelemetryStore()

	var (
		receipts []domain.Receipt
		err      error
	)
	switch {
	case receiptsCode != "":
		receipts, err = telemetry.PageByCode(ctx, domain.Code(receiptsCode), receiptsLimit, receiptsOffset)
	case receiptsErrors:
		receipts, err = telemetry.PageErrors(ctx, receiptsLimit, receiptsOffset)
	default:
		receipts, err = telemetry.PageReceipts(ctx, receiptsLimit, receiptsOffset)
	}
	if err != nil {
		return fmt.Errorf("listing receipts: %w", err)
	}

	if len(receipts) == 0 {
		cmd.Println("No receipts.")
		return nil
	}

	for _, r := range receipts {
		status := "ok "
		if !r.OK {
			status = "ERR"
		}
		line := fmt.Sprintf("%6d  %s  %-22s %-12s %s", r.ID, status, r.Code, r.Adapter, r.TsUTC)
		if r.EnvelopeID != nil {
			line += fmt.Sprintf("  envelope=%d", *r.EnvelopeID)
		}
		if r.ContentHash != "" {
			line += "  " + shortHash(r.ContentHash)
		}
		cmd.Println(line)
		if r.Message != "" {
			cmd.Printf("        %s\n", r.Message)
		}
	}
	return nil
}
