package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
)

// envelopeStore implements driven.EnvelopeStore.
type envelopeStore struct {
	store *Store
}

var _ driven.EnvelopeStore = (*envelopeStore)(nil)

const envelopeColumns = "id, content_hash, mime, text, filename, source_ref, received_at_utc, meta_json"

// InsertOrGet inserts the candidate or collapses onto the existing row for
// its content hash. The unique index on content_hash linearises concurrent
// attempts: exactly one insert wins, losers re-read the winning row. No
// lock is held across unrelated hashes.
func (s *envelopeStore) InsertOrGet(ctx context.Context, candidate domain.EnvelopeCandidate) (domain.Envelope, bool, error) {
	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO envelopes (content_hash, mime, text, filename, source_ref, received_at_utc, meta_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING
	`, candidate.ContentHash, nullString(candidate.MIME), nullString(candidate.Text),
		nullString(candidate.Filename), candidate.SourceRef, candidate.ReceivedAt.UTC(),
		nullString(candidate.MetaJSON))
	if err != nil {
		return domain.Envelope{}, false, fmt.Errorf("inserting envelope: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Envelope{}, false, fmt.Errorf("checking insert result: %w", err)
	}

	if affected == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return domain.Envelope{}, false, fmt.Errorf("reading new envelope id: %w", err)
		}
		env := candidate.Envelope()
		env.ID = id
		env.ReceivedAt = env.ReceivedAt.UTC()
		s.store.notifyEnvelopeObservers(ctx)
		return env, true, nil
	}

	// Lost the race (or the hash was already known): re-read the winner.
	existing, err := s.FindByHash(ctx, candidate.ContentHash)
	if err != nil {
		return domain.Envelope{}, false, fmt.Errorf("re-reading envelope after conflict: %w", err)
	}
	return *existing, false, nil
}

// FindByHash returns the envelope for a content hash.
func (s *envelopeStore) FindByHash(ctx context.Context, hash string) (*domain.Envelope, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+envelopeColumns+" FROM envelopes WHERE content_hash = ? LIMIT 1", hash)
	return scanEnvelope(row)
}

// Get returns the envelope with the given ID.
func (s *envelopeStore) Get(ctx context.Context, id int64) (*domain.Envelope, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+envelopeColumns+" FROM envelopes WHERE id = ?", id)
	return scanEnvelope(row)
}

// All returns every envelope in insertion order.
func (s *envelopeStore) All(ctx context.Context) ([]domain.Envelope, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+envelopeColumns+" FROM envelopes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing envelopes: %w", err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

// ListNewest returns a newest-first page of envelopes.
func (s *envelopeStore) ListNewest(ctx context.Context, limit, offset int) ([]domain.Envelope, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+envelopeColumns+" FROM envelopes ORDER BY received_at_utc DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("paging envelopes: %w", err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

// Observe subscribes to envelope inserts. The channel carries the current
// newest-first state immediately and after every insert; cancel releases
// the subscription. The stream also ends when ctx is cancelled.
func (s *envelopeStore) Observe(ctx context.Context) (<-chan []domain.Envelope, func()) {
	ch := make(chan []domain.Envelope, 1)

	s.store.obsMu.Lock()
	id := s.store.nextObserve
	s.store.nextObserve++
	s.store.observers[id] = ch
	s.store.obsMu.Unlock()

	cancel := func() {
		s.store.obsMu.Lock()
		if existing, ok := s.store.observers[id]; ok {
			delete(s.store.observers, id)
			close(existing)
		}
		s.store.obsMu.Unlock()
	}

	// Seed with the current state so new subscribers need not wait for
	// the next insert.
	if snapshot, err := s.ListNewest(ctx, 1000, 0); err == nil {
		ch <- snapshot
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel
}

func scanEnvelope(row *sql.Row) (*domain.Envelope, error) {
	var env domain.Envelope
	var mime, text, filename, metaJSON sql.NullString
	var receivedAt sql.NullTime
	if err := row.Scan(&env.ID, &env.ContentHash, &mime, &text, &filename,
		&env.SourceRef, &receivedAt, &metaJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning envelope: %w", err)
	}
	env.MIME = mime.String
	env.Text = text.String
	env.Filename = filename.String
	env.MetaJSON = metaJSON.String
	if receivedAt.Valid {
		env.ReceivedAt = receivedAt.Time.UTC()
	}
	return &env, nil
}

func scanEnvelopes(rows *sql.Rows) ([]domain.Envelope, error) {
	var envelopes []domain.Envelope
	for rows.Next() {
		var env domain.Envelope
		var mime, text, filename, metaJSON sql.NullString
		var receivedAt sql.NullTime
		if err := rows.Scan(&env.ID, &env.ContentHash, &mime, &text, &filename,
			&env.SourceRef, &receivedAt, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning envelope: %w", err)
		}
		env.MIME = mime.String
		env.Text = text.String
		env.Filename = filename.String
		env.MetaJSON = metaJSON.String
		if receivedAt.Valid {
			env.ReceivedAt = receivedAt.Time.UTC()
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, rows.Err()
}
