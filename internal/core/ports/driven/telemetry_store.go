package driven

import (
	"context"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

// TelemetryStore persists spans and receipts. The receipt table is
// append-only; spans are upserted (last write wins) so ending a span twice
// is harmless.
type TelemetryStore interface {
	// UpsertSpan inserts or replaces a span by span ID.
	UpsertSpan(ctx context.Context, span domain.Span) error

	// BindSpanEnvelope late-binds a span to the envelope it resolved.
	BindSpanEnvelope(ctx context.Context, spanID string, envelopeID int64, contentHash string) error

	// GetSpan returns a span by ID, or domain.ErrNotFound.
	GetSpan(ctx context.Context, spanID string) (*domain.Span, error)

	// InsertReceipt appends a receipt and returns its row ID.
	InsertReceipt(ctx context.Context, receipt domain.Receipt) (int64, error)

	// PageReceipts returns a newest-first page of receipts.
	PageReceipts(ctx context.Context, limit, offset int) ([]domain.Receipt, error)

	// PageErrors returns a newest-first page of failure receipts.
	PageErrors(ctx context.Context, limit, offset int) ([]domain.Receipt, error)

	// PageByCode returns a newest-first page of receipts with the code.
	PageByCode(ctx context.Context, code domain.Code, limit, offset int) ([]domain.Receipt, error)

	// CountForEnvelope returns how many receipts reference the envelope.
	CountForEnvelope(ctx context.Context, envelopeID int64) (int, error)
}
