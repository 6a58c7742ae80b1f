// Package memory provides an in-memory remote object store for local
// development and tests. Nothing is persisted across process restarts.
package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
)

// Store is an in-memory CloudStore keyed by folder path and content hash.
type Store struct {
	mu            sync.Mutex
	nextID        int64
	folderByPath  map[string]string
	filesByID     map[string]domain.ObjectRef
	hashesByID    map[string]string
	byFolderHash  map[string]map[string]string // folderID -> hash -> fileID
	uploadedBytes map[string][]byte

	// ProbeErr, UploadErr, and FindErr inject failures.
	ProbeErr  error
	UploadErr error
	FindErr   error
}

var _ driven.CloudStore = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		folderByPath:  make(map[string]string),
		filesByID:     make(map[string]domain.ObjectRef),
		hashesByID:    make(map[string]string),
		byFolderHash:  make(map[string]map[string]string),
		uploadedBytes: make(map[string][]byte),
	}
}

// EnsureFolder resolves the joined path to a stable synthetic folder ID.
func (s *Store) EnsureFolder(_ context.Context, pathSegments []string) (domain.FolderRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := strings.Join(pathSegments, "/")
	if id, ok := s.folderByPath[path]; ok {
		return domain.FolderRef{ID: id}, nil
	}
	s.nextID++
	id := fmt.Sprintf("fld_%d", s.nextID)
	s.folderByPath[path] = id
	s.byFolderHash[id] = make(map[string]string)
	return domain.FolderRef{ID: id}, nil
}

// FindByHash returns the object tagged with the hash, or nil when absent.
// An empty folderID searches every folder.
func (s *Store) FindByHash(_ context.Context, hash, folderID string) (*domain.ObjectRef, error) {
	if s.FindErr != nil {
		return nil, s.FindErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if folderID != "" {
		if id, ok := s.byFolderHash[folderID][hash]; ok {
			ref := s.filesByID[id]
			return &ref, nil
		}
		return nil, nil
	}
	for _, hashes := range s.byFolderHash {
		if id, ok := hashes[hash]; ok {
			ref := s.filesByID[id]
			return &ref, nil
		}
	}
	return nil, nil
}

// GetMetadata returns the stored object, or nil when it was deleted.
func (s *Store) GetMetadata(_ context.Context, remoteID string) (*domain.ObjectRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.filesByID[remoteID]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

// UploadResumable drains the payload into memory and registers the
// object under its folder and hash.
func (s *Store) UploadResumable(_ context.Context, spec domain.UploadSpec) (domain.ObjectRef, error) {
	if s.UploadErr != nil {
		return domain.ObjectRef{}, s.UploadErr
	}

	payload, err := io.ReadAll(spec.Body)
	if err != nil {
		return domain.ObjectRef{}, fmt.Errorf("reading payload: %w", err)
	}
	if spec.OnProgress != nil {
		spec.OnProgress(int64(len(payload)), spec.Bytes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("fil_%d", s.nextID)
	ref := domain.ObjectRef{ID: id, Bytes: int64(len(payload))}
	s.filesByID[id] = ref
	s.hashesByID[id] = spec.ContentHash
	s.uploadedBytes[id] = payload
	folder := s.byFolderHash[spec.FolderID]
	if folder == nil {
		folder = make(map[string]string)
		s.byFolderHash[spec.FolderID] = folder
	}
	folder[spec.ContentHash] = id
	return ref, nil
}

// Probe reports the injected error, if any.
func (s *Store) Probe(_ context.Context) error {
	return s.ProbeErr
}

// Delete removes an object, simulating remote-side loss.
func (s *Store) Delete(remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := s.hashesByID[remoteID]
	delete(s.filesByID, remoteID)
	delete(s.hashesByID, remoteID)
	delete(s.uploadedBytes, remoteID)
	for _, hashes := range s.byFolderHash {
		if hashes[hash] == remoteID {
			delete(hashes, hash)
		}
	}
}

// Payload returns the uploaded bytes for an object.
func (s *Store) Payload(remoteID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadedBytes[remoteID]
}

// UploadCount returns how many uploads completed.
func (s *Store) UploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploadedBytes)
}
