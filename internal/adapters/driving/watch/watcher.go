// Package watch ingests files dropped into a local folder. Each file
// that appears is captured through the ingestion pipeline; duplicates
// collapse there, so re-dropping the same file is harmless.
package watch

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driving"
	"github.com/mfme-labs/kapsel/internal/logger"
)

// DefaultSettle is how long a file must sit quiet before it is read.
// Editors and downloads write in bursts; capturing mid-write would hash
// a torn payload.
const DefaultSettle = 500 * time.Millisecond

// Watcher feeds a drop folder into the ingestion pipeline.
type Watcher struct {
	dir      string
	ingestor driving.Ingestor
	settle   time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	// OnResult, when non-nil, receives the outcome of every capture.
	OnResult func(path string, outcome domain.SaveOutcome)
}

// NewWatcher creates a watcher over dir.
func NewWatcher(dir string, ingestor driving.Ingestor) *Watcher {
	return &Watcher{
		dir:      dir,
		ingestor: ingestor,
		settle:   DefaultSettle,
		timers:   make(map[string]*time.Timer),
	}
}

// Run watches the folder until ctx is cancelled. Files already present
// when the watch starts are captured first.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	if err := w.sweepExisting(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				w.scheduleCapture(ctx, event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error: %v", err)
		}
	}
}

// sweepExisting captures files already sitting in the folder.
func (w *Watcher) sweepExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		w.capture(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// scheduleCapture (re)arms the settle timer for a path. Every write
// event pushes the capture further out; the file is read only once it
// has stopped changing.
func (w *Watcher) scheduleCapture(ctx context.Context, path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.capture(ctx, path)
	})
}

func (w *Watcher) capture(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("opening %s: %v", path, err)
		return
	}
	defer f.Close()

	name := filepath.Base(path)
	capture := domain.NewFileCapture(f, mimeForName(name), name, time.Now().UTC(), map[string]any{
		"watchPath": path,
	})
	capture.SourceRef = domain.AdapterWatch
	capture.Adapter = domain.AdapterWatch

	outcome := w.ingestor.Save(ctx, capture)
	logger.Debug("watch captured %s: %s", name, outcome.Code)
	if w.OnResult != nil {
		w.OnResult(path, outcome)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}

func mimeForName(name string) string {
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		// Strip parameters such as charset.
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		return mt
	}
	return "application/octet-stream"
}
