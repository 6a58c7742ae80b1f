package driven

import (
	"context"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

// EnvelopeStore persists content-addressed envelopes. Backed by SQLite.
type EnvelopeStore interface {
	// InsertOrGet inserts the candidate or returns the existing envelope
	// for its content hash. Under concurrent callers racing on the same
	// hash exactly one insert wins; all others observe the winning row
	// with isNew == false. Implementations use a unique constraint plus
	// re-read, not a long-held lock, so unrelated hashes never serialise.
	InsertOrGet(ctx context.Context, candidate domain.EnvelopeCandidate) (env domain.Envelope, isNew bool, err error)

	// FindByHash returns the envelope for a content hash, or
	// domain.ErrNotFound.
	FindByHash(ctx context.Context, hash string) (*domain.Envelope, error)

	// Get returns the envelope with the given ID, or domain.ErrNotFound.
	Get(ctx context.Context, id int64) (*domain.Envelope, error)

	// All returns every envelope. Used by the reconciliation sweep.
	All(ctx context.Context) ([]domain.Envelope, error)

	// ListNewest returns a newest-first page of envelopes.
	ListNewest(ctx context.Context, limit, offset int) ([]domain.Envelope, error)

	// Observe returns a live, restartable view of the envelope table:
	// the channel receives the newest-first list after every insert,
	// starting with the current state. Cancel releases the subscription.
	Observe(ctx context.Context) (updates <-chan []domain.Envelope, cancel func())
}
