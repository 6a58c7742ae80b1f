package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
)

// bindingStore implements driven.CloudBindingStore.
type bindingStore struct {
	store *Store
}

var _ driven.CloudBindingStore = (*bindingStore)(nil)

const bindingColumns = "envelope_id, remote_id, uploaded_at_utc, remote_digest, remote_size"

// Upsert inserts or replaces the binding for its envelope.
func (s *bindingStore) Upsert(ctx context.Context, binding domain.CloudBinding) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO cloud_bindings (envelope_id, remote_id, uploaded_at_utc, remote_digest, remote_size)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(envelope_id) DO UPDATE SET
			remote_id = excluded.remote_id,
			uploaded_at_utc = excluded.uploaded_at_utc,
			remote_digest = excluded.remote_digest,
			remote_size = excluded.remote_size
	`, binding.EnvelopeID, binding.RemoteID, binding.UploadedAt.UTC(),
		nullString(binding.RemoteDigest), nullInt64(binding.RemoteSize))
	if err != nil {
		return fmt.Errorf("upserting binding: %w", err)
	}
	return nil
}

// FindByEnvelope returns the binding for an envelope.
func (s *bindingStore) FindByEnvelope(ctx context.Context, envelopeID int64) (*domain.CloudBinding, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+bindingColumns+" FROM cloud_bindings WHERE envelope_id = ?", envelopeID)
	return scanBinding(row)
}

// FindByRemoteID returns the binding for a remote object.
func (s *bindingStore) FindByRemoteID(ctx context.Context, remoteID string) (*domain.CloudBinding, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+bindingColumns+" FROM cloud_bindings WHERE remote_id = ?", remoteID)
	return scanBinding(row)
}

// ListOrphans returns bindings whose envelope no longer exists, via an
// anti-join against the envelope table.
func (s *bindingStore) ListOrphans(ctx context.Context) ([]domain.CloudBinding, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT cb.envelope_id, cb.remote_id, cb.uploaded_at_utc, cb.remote_digest, cb.remote_size
		FROM cloud_bindings cb
		LEFT JOIN envelopes e ON cb.envelope_id = e.id
		WHERE e.id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("listing orphan bindings: %w", err)
	}
	defer rows.Close()
	return scanBindings(rows)
}

// DeleteByEnvelope removes the binding for an envelope.
func (s *bindingStore) DeleteByEnvelope(ctx context.Context, envelopeID int64) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM cloud_bindings WHERE envelope_id = ?", envelopeID)
	if err != nil {
		return fmt.Errorf("deleting binding: %w", err)
	}
	return nil
}

// ListAll returns every binding.
func (s *bindingStore) ListAll(ctx context.Context) ([]domain.CloudBinding, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+bindingColumns+" FROM cloud_bindings ORDER BY envelope_id")
	if err != nil {
		return nil, fmt.Errorf("listing bindings: %w", err)
	}
	defer rows.Close()
	return scanBindings(rows)
}

func scanBinding(row *sql.Row) (*domain.CloudBinding, error) {
	var b domain.CloudBinding
	var uploadedAt sql.NullTime
	var digest sql.NullString
	var size sql.NullInt64
	if err := row.Scan(&b.EnvelopeID, &b.RemoteID, &uploadedAt, &digest, &size); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning binding: %w", err)
	}
	if uploadedAt.Valid {
		b.UploadedAt = uploadedAt.Time.UTC()
	}
	b.RemoteDigest = digest.String
	b.RemoteSize = -1
	if size.Valid {
		b.RemoteSize = size.Int64
	}
	return &b, nil
}

func scanBindings(rows *sql.Rows) ([]domain.CloudBinding, error) {
	var bindings []domain.CloudBinding
	for rows.Next() {
		var b domain.CloudBinding
		var uploadedAt sql.NullTime
		var digest sql.NullString
		var size sql.NullInt64
		if err := rows.Scan(&b.EnvelopeID, &b.RemoteID, &uploadedAt, &digest, &size); err != nil {
			return nil, fmt.Errorf("scanning binding: %w", err)
		}
		if uploadedAt.Valid {
			b.UploadedAt = uploadedAt.Time.UTC()
		}
		b.RemoteDigest = digest.String
		b.RemoteSize = -1
		if size.Valid {
			b.RemoteSize = size.Int64
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}
