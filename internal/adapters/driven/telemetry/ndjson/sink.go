// Package ndjson mirrors every receipt into a day-partitioned NDJSON
// audit log on the local filesystem. The mirror is best-effort relative
// to the receipt row: a failed file write never blocks the ledger.
package ndjson

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
)

// Sink writes one file per receipt under <dir>/<YYYY-MM-DD>/.
type Sink struct {
	dir string

	// now is swappable in tests; filenames embed a millisecond stamp.
	now func() time.Time
}

var _ driven.ReceiptSink = (*Sink)(nil)

// NewSink creates a sink rooted at dir. If dir is empty, defaults to
// ~/.kapsel/data/telemetry.
func NewSink(dir string) (*Sink, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".kapsel", "data", "telemetry")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}
	return &Sink{dir: dir, now: time.Now}, nil
}

// WriteLine appends one canonical JSON line for the UTC day in tsUTC.
// The line lands as its own <millis>-<receiptHash>.ndjson file via a
// temp name and rename; if the rename fails the line falls back to an
// appended receipts.ndjson in the same day directory.
func (s *Sink) WriteLine(tsUTC, receiptHash, line string) error {
	day := tsUTC
	if len(day) >= 10 {
		day = day[:10]
	}
	dir := filepath.Join(s.dir, day)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating day directory: %w", err)
	}

	tmp := filepath.Join(dir, receiptHash+".tmp")
	out := filepath.Join(dir, fmt.Sprintf("%d-%s.ndjson", s.now().UnixMilli(), receiptHash))

	if err := writeSynced(tmp, line); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, out); err != nil {
		defer os.Remove(tmp)
		return appendSynced(filepath.Join(dir, "receipts.ndjson"), line)
	}
	return nil
}

func writeSynced(path, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating receipt file: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("writing receipt line: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing receipt file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing receipt file: %w", err)
	}
	return nil
}

func appendSynced(path, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("opening overflow log: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("appending overflow line: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing overflow log: %w", err)
	}
	return f.Close()
}
