package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testCandidate(hash string) domain.EnvelopeCandidate {
	return domain.EnvelopeCandidate{
		ContentHash: hash,
		MIME:        "text/plain",
		Text:        "hello",
		SourceRef:   "test",
		ReceivedAt:  time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
	}
}

func TestEnvelopeInsertOrGet(t *testing.T) {
	store := newTestStore(t)
	envelopes := store.EnvelopeStore()
	ctx := context.Background()

	env, isNew, err := envelopes.InsertOrGet(ctx, testCandidate("hash-1"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotZero(t, env.ID)

	// Same hash collapses onto the first row, different metadata and all.
	dup := testCandidate("hash-1")
	dup.SourceRef = "elsewhere"
	dup.ReceivedAt = dup.ReceivedAt.Add(time.Hour)
	again, isNew, err := envelopes.InsertOrGet(ctx, dup)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, env.ID, again.ID)
	assert.Equal(t, "test", again.SourceRef)
	assert.True(t, again.ReceivedAt.Equal(testCandidate("hash-1").ReceivedAt),
		"first observation time wins")
}

func TestEnvelopeConcurrentSameHashOneWinner(t *testing.T) {
	store := newTestStore(t)
	envelopes := store.EnvelopeStore()
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	newCount := make(chan bool, attempts)
	ids := make(chan int64, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env, isNew, err := envelopes.InsertOrGet(ctx, testCandidate("contested"))
			if assert.NoError(t, err) {
				newCount <- isNew
				ids <- env.ID
			}
		}()
	}
	wg.Wait()
	close(newCount)
	close(ids)

	wins := 0
	for isNew := range newCount {
		if isNew {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one attempt inserts")

	var first int64
	for id := range ids {
		if first == 0 {
			first = id
		}
		assert.Equal(t, first, id, "every attempt resolves to the same row")
	}
}

func TestEnvelopeLookups(t *testing.T) {
	store := newTestStore(t)
	envelopes := store.EnvelopeStore()
	ctx := context.Background()

	env, _, err := envelopes.InsertOrGet(ctx, testCandidate("hash-2"))
	require.NoError(t, err)

	byHash, err := envelopes.FindByHash(ctx, "hash-2")
	require.NoError(t, err)
	assert.Equal(t, env.ID, byHash.ID)
	assert.Equal(t, "hello", byHash.Text)

	byID, err := envelopes.Get(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", byID.ContentHash)

	_, err = envelopes.FindByHash(ctx, "absent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = envelopes.Get(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnvelopeListNewest(t *testing.T) {
	store := newTestStore(t)
	envelopes := store.EnvelopeStore()
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	for i, hash := range []string{"old", "mid", "new"} {
		c := testCandidate(hash)
		c.ReceivedAt = base.Add(time.Duration(i) * time.Hour)
		_, _, err := envelopes.InsertOrGet(ctx, c)
		require.NoError(t, err)
	}

	page, err := envelopes.ListNewest(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "new", page[0].ContentHash)
	assert.Equal(t, "mid", page[1].ContentHash)

	rest, err := envelopes.ListNewest(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "old", rest[0].ContentHash)
}

func TestEnvelopeObserve(t *testing.T) {
	store := newTestStore(t)
	envelopes := store.EnvelopeStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsubscribe := envelopes.Observe(ctx)
	defer unsubscribe()

	// Seed snapshot arrives immediately.
	select {
	case snapshot := <-ch:
		assert.Empty(t, snapshot)
	case <-time.After(time.Second):
		t.Fatal("no seed snapshot")
	}

	_, _, err := envelopes.InsertOrGet(ctx, testCandidate("observed"))
	require.NoError(t, err)

	select {
	case snapshot := <-ch:
		require.Len(t, snapshot, 1)
		assert.Equal(t, "observed", snapshot[0].ContentHash)
	case <-time.After(time.Second):
		t.Fatal("no insert notification")
	}
}

func TestSpanUpsertPreservesBoundEnvelope(t *testing.T) {
	store := newTestStore(t)
	telemetry := store.TelemetryStore()
	ctx := context.Background()

	span := domain.Span{SpanID: "span-1", Adapter: "share", StartNanos: 10, EndNanos: 10}
	require.NoError(t, telemetry.UpsertSpan(ctx, span))
	require.NoError(t, telemetry.BindSpanEnvelope(ctx, "span-1", 7, "hash-x"))

	// Re-upserting without envelope fields must not clear the binding.
	span.EndNanos = 99
	require.NoError(t, telemetry.UpsertSpan(ctx, span))

	got, err := telemetry.GetSpan(ctx, "span-1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.EndNanos)
	require.NotNil(t, got.EnvelopeID)
	assert.Equal(t, int64(7), *got.EnvelopeID)
	assert.Equal(t, "hash-x", got.ContentHash)
}

func TestGetSpanUnknown(t *testing.T) {
	store := newTestStore(t)

	_, err := store.TelemetryStore().GetSpan(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func insertReceipt(t *testing.T, store *Store, ok bool, code domain.Code, envelopeID *int64) int64 {
	t.Helper()
	id, err := store.TelemetryStore().InsertReceipt(context.Background(), domain.Receipt{
		OK:          ok,
		Code:        code,
		Adapter:     "share",
		TsUTC:       "2026-08-31T09:00:00Z",
		EnvelopeID:  envelopeID,
		SpanID:      "span-r",
		ReceiptHash: "rh",
	})
	require.NoError(t, err)
	return id
}

func TestReceiptPaging(t *testing.T) {
	store := newTestStore(t)
	telemetry := store.TelemetryStore()
	ctx := context.Background()

	envID := int64(1)
	insertReceipt(t, store, true, domain.CodeOkNew, &envID)
	insertReceipt(t, store, false, domain.CodeEmptyInput, nil)
	insertReceipt(t, store, true, domain.CodeOkDuplicate, &envID)
	insertReceipt(t, store, false, domain.CodeOversize, nil)

	page, err := telemetry.PageReceipts(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, domain.CodeOversize, page[0].Code, "newest first")
	assert.Equal(t, domain.CodeOkDuplicate, page[1].Code)

	errs, err := telemetry.PageErrors(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, domain.CodeOversize, errs[0].Code)
	assert.Equal(t, domain.CodeEmptyInput, errs[1].Code)

	byCode, err := telemetry.PageByCode(ctx, domain.CodeOkNew, 10, 0)
	require.NoError(t, err)
	require.Len(t, byCode, 1)
	assert.Equal(t, domain.CodeOkNew, byCode[0].Code)

	count, err := telemetry.CountForEnvelope(ctx, envID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBindingUpsertAndLookup(t *testing.T) {
	store := newTestStore(t)
	bindings := store.CloudBindingStore()
	ctx := context.Background()

	env, _, err := store.EnvelopeStore().InsertOrGet(ctx, testCandidate("bound"))
	require.NoError(t, err)

	uploaded := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	require.NoError(t, bindings.Upsert(ctx, domain.CloudBinding{
		EnvelopeID:   env.ID,
		RemoteID:     "fil_1",
		UploadedAt:   uploaded,
		RemoteDigest: "d41d8cd9",
		RemoteSize:   5,
	}))

	got, err := bindings.FindByEnvelope(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, "fil_1", got.RemoteID)
	assert.True(t, got.UploadedAt.Equal(uploaded))
	assert.Equal(t, int64(5), got.RemoteSize)

	byRemote, err := bindings.FindByRemoteID(ctx, "fil_1")
	require.NoError(t, err)
	assert.Equal(t, env.ID, byRemote.EnvelopeID)

	// Upsert replaces in place; one binding per envelope.
	require.NoError(t, bindings.Upsert(ctx, domain.CloudBinding{
		EnvelopeID: env.ID,
		RemoteID:   "fil_2",
		UploadedAt: uploaded.Add(time.Hour),
		RemoteSize: -1,
	}))
	got, err = bindings.FindByEnvelope(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, "fil_2", got.RemoteID)
	assert.Equal(t, int64(-1), got.RemoteSize, "unknown size survives the NULL roundtrip")

	all, err := bindings.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBindingOrphanAntiJoin(t *testing.T) {
	store := newTestStore(t)
	bindings := store.CloudBindingStore()
	ctx := context.Background()

	env, _, err := store.EnvelopeStore().InsertOrGet(ctx, testCandidate("kept"))
	require.NoError(t, err)
	require.NoError(t, bindings.Upsert(ctx, domain.CloudBinding{
		EnvelopeID: env.ID, RemoteID: "fil_kept", UploadedAt: time.Now().UTC(),
	}))
	require.NoError(t, bindings.Upsert(ctx, domain.CloudBinding{
		EnvelopeID: 4242, RemoteID: "fil_orphan", UploadedAt: time.Now().UTC(),
	}))

	orphans, err := bindings.ListOrphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, int64(4242), orphans[0].EnvelopeID)

	require.NoError(t, bindings.DeleteByEnvelope(ctx, 4242))
	orphans, err = bindings.ListOrphans(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestReopenStoreKeepsData(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	env, _, err := store.EnvelopeStore().InsertOrGet(context.Background(), testCandidate("durable"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening re-runs migrate; already-applied versions are skipped.
	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.EnvelopeStore().Get(context.Background(), env.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", got.ContentHash)
}
