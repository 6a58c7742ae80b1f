package fsblob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
)

// payloadPrefix names payload files inside each hash directory. The
// extension varies; the prefix is how Open finds the payload back.
const payloadPrefix = "payload."

// Store is the content-addressed payload store rooted at
// <dir>/<hash>/payload.<ext>.
type Store struct {
	root  string
	spool string
}

var _ driven.PayloadStore = (*Store)(nil)

// NewStore creates a payload store rooted at dir. If dir is empty,
// defaults to ~/.kapsel/data/envelopes.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".kapsel", "data", "envelopes")
	}
	spool := filepath.Join(dir, ".spool")
	if err := os.MkdirAll(spool, 0700); err != nil {
		return nil, fmt.Errorf("creating payload directory: %w", err)
	}
	return &Store{root: dir, spool: spool}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// Put stores an in-memory payload under its hash.
func (s *Store) Put(hash, ext string, payload []byte) error {
	dir := filepath.Join(s.root, hash)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating envelope directory: %w", err)
	}

	name := payloadPrefix + safeExt(ext)
	tmp := filepath.Join(dir, name+".tmp")
	final := filepath.Join(dir, name)

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating payload temp: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing payload: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing payload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing payload temp: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing payload: %w", err)
	}
	return nil
}

// Spool returns a writer accumulating bytes whose hash is not yet known.
func (s *Store) Spool() (driven.PayloadSpool, error) {
	path := filepath.Join(s.spool, uuid.NewString()+".tmp")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}
	return &spoolFile{store: s, file: f, path: path}, nil
}

// Open returns the payload for a hash with its byte length.
func (s *Store) Open(hash string) (io.ReadCloser, int64, error) {
	path, err := s.find(hash)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening payload: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stating payload: %w", err)
	}
	return f, info.Size(), nil
}

// Exists reports whether a payload is stored for the hash.
func (s *Store) Exists(hash string) bool {
	_, err := s.find(hash)
	return err == nil
}

// find locates the payload file inside the hash directory.
func (s *Store) find(hash string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, hash))
	if err != nil {
		return "", fmt.Errorf("payload for %s: %w", hash, domain.ErrNotFound)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, payloadPrefix) && !strings.HasSuffix(name, ".tmp") {
			return filepath.Join(s.root, hash, name), nil
		}
	}
	return "", fmt.Errorf("payload for %s: %w", hash, domain.ErrNotFound)
}

// spoolFile implements driven.PayloadSpool.
type spoolFile struct {
	store *Store
	file  *os.File
	path  string
}

func (sp *spoolFile) Write(p []byte) (int, error) {
	return sp.file.Write(p)
}

// Commit fsyncs the spooled bytes and renames them under the hash.
func (sp *spoolFile) Commit(hash, ext string) error {
	if err := sp.file.Sync(); err != nil {
		sp.file.Close()
		os.Remove(sp.path)
		return fmt.Errorf("syncing spool: %w", err)
	}
	if err := sp.file.Close(); err != nil {
		os.Remove(sp.path)
		return fmt.Errorf("closing spool: %w", err)
	}

	dir := filepath.Join(sp.store.root, hash)
	if err := os.MkdirAll(dir, 0700); err != nil {
		os.Remove(sp.path)
		return fmt.Errorf("creating envelope directory: %w", err)
	}
	final := filepath.Join(dir, payloadPrefix+safeExt(ext))
	if err := os.Rename(sp.path, final); err != nil {
		os.Remove(sp.path)
		return fmt.Errorf("publishing payload: %w", err)
	}
	return nil
}

// Abort discards the spooled bytes.
func (sp *spoolFile) Abort() error {
	sp.file.Close()
	if err := os.Remove(sp.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing spool: %w", err)
	}
	return nil
}

// safeExt normalises an extension for use in the payload filename.
func safeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return "bin"
	}
	return ext
}
