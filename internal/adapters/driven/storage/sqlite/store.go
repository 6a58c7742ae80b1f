package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mfme-labs/kapsel/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
)

// Store is the unified SQLite-based storage providing the envelope,
// telemetry and cloud binding store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string

	// Envelope insert notifications for Observe subscribers.
	obsMu       sync.Mutex
	observers   map[int]chan []domain.Envelope
	nextObserve int
}

// NewStore creates a new SQLite store in the specified data directory.
// If dataDir is empty, defaults to ~/.kapsel/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".kapsel", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "kapsel.db")

	// WAL mode so concurrent ingestion attempts do not serialise on the
	// whole database.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:        db,
		path:      dbPath,
		observers: make(map[int]chan []domain.Envelope),
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.obsMu.Lock()
	for id, ch := range s.observers {
		close(ch)
		delete(s.observers, id)
	}
	s.obsMu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// EnvelopeStore returns an EnvelopeStore interface backed by this store.
func (s *Store) EnvelopeStore() driven.EnvelopeStore {
	return &envelopeStore{store: s}
}

// TelemetryStore returns a TelemetryStore interface backed by this store.
func (s *Store) TelemetryStore() driven.TelemetryStore {
	return &telemetryStore{store: s}
}

// CloudBindingStore returns a CloudBindingStore interface backed by this store.
func (s *Store) CloudBindingStore() driven.CloudBindingStore {
	return &bindingStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// notifyEnvelopeObservers pushes the newest-first snapshot to every
// subscriber. Latest wins: a slow consumer sees the most recent state,
// never a stale backlog.
func (s *Store) notifyEnvelopeObservers(ctx context.Context) {
	s.obsMu.Lock()
	count := len(s.observers)
	s.obsMu.Unlock()
	if count == 0 {
		return
	}

	snapshot, err := (&envelopeStore{store: s}).All(ctx)
	if err != nil {
		return
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].ReceivedAt.After(snapshot[j].ReceivedAt)
	})

	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for _, ch := range s.observers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// nullString converts "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullInt64 converts negative sizes to NULL.
func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n >= 0}
}
