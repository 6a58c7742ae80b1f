package driving

import (
	"context"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

// Syncer drives cloud uploads and the periodic reconciliation sweep.
type Syncer interface {
	// UploadByHash runs the upload state machine for the envelope with the
	// given content hash. Idempotent: re-entry for a bound envelope
	// short-circuits with ok_already_bound.
	UploadByHash(ctx context.Context, contentHash string) (domain.Code, error)

	// Reconcile audits bindings against remote truth and repairs drift.
	// Serialised against itself; safe to run alongside uploads.
	Reconcile(ctx context.Context) (ReconcileReport, error)

	// Probe checks the remote capability and emits cloud_verify receipts.
	Probe(ctx context.Context) error
}

// ReconcileReport summarises one reconciliation sweep.
type ReconcileReport struct {
	OrphansRemoved int
	Rebound        int
	Confirmed      int
	Missing        int
}
