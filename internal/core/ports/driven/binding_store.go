package driven

import (
	"context"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

// CloudBindingStore persists envelope-to-remote-object bindings.
type CloudBindingStore interface {
	// Upsert inserts or replaces the binding for its envelope.
	Upsert(ctx context.Context, binding domain.CloudBinding) error

	// FindByEnvelope returns the binding for an envelope, or
	// domain.ErrNotFound.
	FindByEnvelope(ctx context.Context, envelopeID int64) (*domain.CloudBinding, error)

	// FindByRemoteID returns the binding for a remote object, or
	// domain.ErrNotFound.
	FindByRemoteID(ctx context.Context, remoteID string) (*domain.CloudBinding, error)

	// ListOrphans returns bindings whose envelope no longer exists,
	// computed via an anti-join against the envelope table.
	ListOrphans(ctx context.Context) ([]domain.CloudBinding, error)

	// DeleteByEnvelope removes the binding for an envelope. Deleting a
	// missing binding is not an error.
	DeleteByEnvelope(ctx context.Context, envelopeID int64) error

	// ListAll returns every binding.
	ListAll(ctx context.Context) ([]domain.CloudBinding, error)
}
