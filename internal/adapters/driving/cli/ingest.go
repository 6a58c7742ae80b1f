package cli

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Capture content into the local store",
	Long: `Captures content into the content-addressed envelope store.
Identical content collapses onto one envelope no matter how often it is
captured; every attempt leaves a telemetry receipt either way.`,
}

var ingestTextCmd = &cobra.Command{
	Use:   "text <text>",
	Short: "Capture a piece of text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngestText,
}

var ingestFileCmd = &cobra.Command{
	Use:   "file <path>...",
	Short: "Capture one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngestFile,
}

var ingestSource string

func init() {
	ingestCmd.PersistentFlags().StringVar(&ingestSource, "source", "",
		"Source reference recorded on the envelope")
	ingestCmd.AddCommand(ingestTextCmd)
	ingestCmd.AddCommand(ingestFileCmd)
	rootCmd.AddCommand(ingestCmd)
}

func runIngestText(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(raw)
	}

	capture := domain.NewShareText(text, sourceRef("cli"), time.Now().UTC())
	outcome := pipeline.Save(cmd.Context(), capture)
	return printOutcome(cmd, "text", outcome)
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	var failed bool
	for _, path := range args {
		outcome, err := captureFile(cmd, path)
		if err != nil {
			cmd.PrintErrf("%s: %v\n", path, err)
			failed = true
			continue
		}
		if err := printOutcome(cmd, filepath.Base(path), outcome); err != nil {
			failed = true
		}
	}
	if failed {
		return errors.New("some captures failed")
	}
	return nil
}

func captureFile(cmd *cobra.Command, path string) (domain.SaveOutcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.SaveOutcome{}, err
	}
	defer f.Close()

	name := filepath.Base(path)
	capture := domain.NewFileCapture(f, mimeForPath(path), name, time.Now().UTC(), nil)
	capture.SourceRef = sourceRef(domain.AdapterFiles)
	return pipeline.Save(cmd.Context(), capture), nil
}

// printOutcome renders a SaveOutcome and returns an error for failures
// so the process exit code reflects the capture result.
func printOutcome(cmd *cobra.Command, label string, outcome domain.SaveOutcome) error {
	switch outcome.Status {
	case domain.SaveNew:
		cmd.Printf("%s: captured (envelope %d, %s)\n", label, outcome.EnvelopeID, outcome.Code)
	case domain.SaveDuplicate:
		cmd.Printf("%s: duplicate of envelope %d (%s)\n", label, outcome.EnvelopeID, outcome.Code)
	default:
		return fmt.Errorf("%s: capture failed (%s): %w", label, outcome.Code, outcome.Err)
	}
	return nil
}

func sourceRef(fallback string) string {
	if ingestSource != "" {
		return ingestSource
	}
	return fallback
}

func mimeForPath(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		return mt
	}
	return "application/octet-stream"
}
