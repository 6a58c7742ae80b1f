package driven

import (
	"context"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

// CloudStore is the remote object store capability consumed by the sync
// engine. Implementations map transport failures onto the domain cloud
// sentinels (ErrCloudAuth, ErrCloudBackoff, ErrRemoteNotFound) so the
// engine can classify without knowing the wire protocol.
type CloudStore interface {
	// EnsureFolder resolves the folder at the given path, creating missing
	// segments. Resolution is idempotent: an existing folder is looked up
	// by name and parent before anything is created.
	EnsureFolder(ctx context.Context, pathSegments []string) (domain.FolderRef, error)

	// FindByHash returns the object tagged with the content hash inside
	// the folder, or nil when none exists. An empty folderID searches the
	// whole store.
	FindByHash(ctx context.Context, hash, folderID string) (*domain.ObjectRef, error)

	// GetMetadata returns current metadata for a remote object, or nil
	// when the object is gone.
	GetMetadata(ctx context.Context, remoteID string) (*domain.ObjectRef, error)

	// UploadResumable streams the payload to the remote store, tagging the
	// object with the spec's content hash and received time.
	UploadResumable(ctx context.Context, spec domain.UploadSpec) (domain.ObjectRef, error)

	// Probe verifies the capability is reachable and authorised.
	Probe(ctx context.Context) error
}
