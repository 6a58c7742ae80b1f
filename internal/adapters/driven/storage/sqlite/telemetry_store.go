package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
)

// telemetryStore implements driven.TelemetryStore.
type telemetryStore struct {
	store *Store
}

var _ driven.TelemetryStore = (*telemetryStore)(nil)

const receiptColumns = "id, ok, code, adapter, ts_utc, envelope_id, content_hash, message, span_id, receipt_sha256"

// UpsertSpan inserts or replaces a span by span ID. Last write wins.
func (s *telemetryStore) UpsertSpan(ctx context.Context, span domain.Span) error {
	var envelopeID sql.NullInt64
	if span.EnvelopeID != nil {
		envelopeID = sql.NullInt64{Int64: *span.EnvelopeID, Valid: true}
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO spans (span_id, adapter, start_nanos, end_nanos, envelope_id, content_hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(span_id) DO UPDATE SET
			adapter = excluded.adapter,
			start_nanos = excluded.start_nanos,
			end_nanos = excluded.end_nanos,
			envelope_id = COALESCE(excluded.envelope_id, spans.envelope_id),
			content_hash = COALESCE(excluded.content_hash, spans.content_hash)
	`, span.SpanID, span.Adapter, span.StartNanos, span.EndNanos,
		envelopeID, nullString(span.ContentHash))
	if err != nil {
		return fmt.Errorf("upserting span: %w", err)
	}
	return nil
}

// BindSpanEnvelope late-binds a span to its resolved envelope.
func (s *telemetryStore) BindSpanEnvelope(ctx context.Context, spanID string, envelopeID int64, contentHash string) error {
	_, err := s.store.db.ExecContext(ctx,
		"UPDATE spans SET envelope_id = ?, content_hash = ? WHERE span_id = ?",
		envelopeID, nullString(contentHash), spanID)
	if err != nil {
		return fmt.Errorf("binding span: %w", err)
	}
	return nil
}

// GetSpan returns a span by ID.
func (s *telemetryStore) GetSpan(ctx context.Context, spanID string) (*domain.Span, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT span_id, adapter, start_nanos, end_nanos, envelope_id, content_hash FROM spans WHERE span_id = ?",
		spanID)

	var span domain.Span
	var envelopeID sql.NullInt64
	var contentHash sql.NullString
	if err := row.Scan(&span.SpanID, &span.Adapter, &span.StartNanos, &span.EndNanos,
		&envelopeID, &contentHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning span: %w", err)
	}
	if envelopeID.Valid {
		span.EnvelopeID = &envelopeID.Int64
	}
	span.ContentHash = contentHash.String
	return &span, nil
}

// InsertReceipt appends a receipt. Receipts are append-only: there is no
// update or delete path.
func (s *telemetryStore) InsertReceipt(ctx context.Context, receipt domain.Receipt) (int64, error) {
	var envelopeID sql.NullInt64
	if receipt.EnvelopeID != nil {
		envelopeID = sql.NullInt64{Int64: *receipt.EnvelopeID, Valid: true}
	}
	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO receipts (ok, code, adapter, ts_utc, envelope_id, content_hash, message, span_id, receipt_sha256)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, receipt.OK, string(receipt.Code), receipt.Adapter, receipt.TsUTC,
		envelopeID, nullString(receipt.ContentHash), nullString(receipt.Message),
		receipt.SpanID, receipt.ReceiptHash)
	if err != nil {
		return 0, fmt.Errorf("inserting receipt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading receipt id: %w", err)
	}
	return id, nil
}

// PageReceipts returns a newest-first page of receipts.
func (s *telemetryStore) PageReceipts(ctx context.Context, limit, offset int) ([]domain.Receipt, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+receiptColumns+" FROM receipts ORDER BY id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("paging receipts: %w", err)
	}
	defer rows.Close()
	return scanReceipts(rows)
}

// PageErrors returns a newest-first page of failure receipts.
func (s *telemetryStore) PageErrors(ctx context.Context, limit, offset int) ([]domain.Receipt, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+receiptColumns+" FROM receipts WHERE ok = 0 ORDER BY id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("paging error receipts: %w", err)
	}
	defer rows.Close()
	return scanReceipts(rows)
}

// PageByCode returns a newest-first page of receipts with the given code.
func (s *telemetryStore) PageByCode(ctx context.Context, code domain.Code, limit, offset int) ([]domain.Receipt, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+receiptColumns+" FROM receipts WHERE code = ? ORDER BY id DESC LIMIT ? OFFSET ?",
		string(code), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("paging receipts by code: %w", err)
	}
	defer rows.Close()
	return scanReceipts(rows)
}

// CountForEnvelope returns how many receipts reference the envelope.
func (s *telemetryStore) CountForEnvelope(ctx context.Context, envelopeID int64) (int, error) {
	var count int
	row := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM receipts WHERE envelope_id = ?", envelopeID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting receipts: %w", err)
	}
	return count, nil
}

func scanReceipts(rows *sql.Rows) ([]domain.Receipt, error) {
	var receipts []domain.Receipt
	for rows.Next() {
		var r domain.Receipt
		var code string
		var envelopeID sql.NullInt64
		var contentHash, message sql.NullString
		if err := rows.Scan(&r.ID, &r.OK, &code, &r.Adapter, &r.TsUTC,
			&envelopeID, &contentHash, &message, &r.SpanID, &r.ReceiptHash); err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		r.Code = domain.Code(code)
		if envelopeID.Valid {
			id := envelopeID.Int64
			r.EnvelopeID = &id
		}
		r.ContentHash = contentHash.String
		r.Message = message.String
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
