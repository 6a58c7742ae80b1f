package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
)

// In-memory port fakes shared by the service tests.

type fakeEnvelopes struct {
	mu     sync.Mutex
	nextID int64
	byHash map[string]domain.Envelope
}

var _ driven.EnvelopeStore = (*fakeEnvelopes)(nil)

func newFakeEnvelopes() *fakeEnvelopes {
	return &fakeEnvelopes{byHash: make(map[string]domain.Envelope)}
}

func (f *fakeEnvelopes) InsertOrGet(_ context.Context, candidate domain.EnvelopeCandidate) (domain.Envelope, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.byHash[candidate.ContentHash]; ok {
		return existing, false, nil
	}
	f.nextID++
	env := candidate.Envelope()
	env.ID = f.nextID
	f.byHash[candidate.ContentHash] = env
	return env, true, nil
}

func (f *fakeEnvelopes) FindByHash(_ context.Context, hash string) (*domain.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if env, ok := f.byHash[hash]; ok {
		return &env, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEnvelopes) Get(_ context.Context, id int64) (*domain.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, env := range f.byHash {
		if env.ID == id {
			return &env, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEnvelopes) All(_ context.Context) ([]domain.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Envelope, 0, len(f.byHash))
	for _, env := range f.byHash {
		out = append(out, env)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEnvelopes) ListNewest(ctx context.Context, limit, _ int) ([]domain.Envelope, error) {
	all, _ := f.All(ctx)
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeEnvelopes) Observe(context.Context) (<-chan []domain.Envelope, func()) {
	ch := make(chan []domain.Envelope)
	return ch, func() { close(ch) }
}

func (f *fakeEnvelopes) delete(hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byHash, hash)
}

type fakeBindings struct {
	mu         sync.Mutex
	byEnvelope map[int64]domain.CloudBinding
	envelopes  *fakeEnvelopes
}

var _ driven.CloudBindingStore = (*fakeBindings)(nil)

func newFakeBindings(envelopes *fakeEnvelopes) *fakeBindings {
	return &fakeBindings{byEnvelope: make(map[int64]domain.CloudBinding), envelopes: envelopes}
}

func (f *fakeBindings) Upsert(_ context.Context, binding domain.CloudBinding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byEnvelope[binding.EnvelopeID] = binding
	return nil
}

func (f *fakeBindings) FindByEnvelope(_ context.Context, envelopeID int64) (*domain.CloudBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.byEnvelope[envelopeID]; ok {
		return &b, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBindings) FindByRemoteID(_ context.Context, remoteID string) (*domain.CloudBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.byEnvelope {
		if b.RemoteID == remoteID {
			return &b, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBindings) ListOrphans(ctx context.Context) ([]domain.CloudBinding, error) {
	envelopes, _ := f.envelopes.All(ctx)
	known := make(map[int64]bool, len(envelopes))
	for _, env := range envelopes {
		known[env.ID] = true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var orphans []domain.CloudBinding
	for id, b := range f.byEnvelope {
		if !known[id] {
			orphans = append(orphans, b)
		}
	}
	return orphans, nil
}

func (f *fakeBindings) DeleteByEnvelope(_ context.Context, envelopeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byEnvelope, envelopeID)
	return nil
}

func (f *fakeBindings) ListAll(_ context.Context) ([]domain.CloudBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CloudBinding, 0, len(f.byEnvelope))
	for _, b := range f.byEnvelope {
		out = append(out, b)
	}
	return out, nil
}

type fakePayloads struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	putErr  error
	openErr error
}

var _ driven.PayloadStore = (*fakePayloads)(nil)

func newFakePayloads() *fakePayloads {
	return &fakePayloads{blobs: make(map[string][]byte)}
}

func (f *fakePayloads) Put(hash, _ string, payload []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[hash] = append([]byte(nil), payload...)
	return nil
}

func (f *fakePayloads) Spool() (driven.PayloadSpool, error) {
	return &fakeSpool{store: f}, nil
}

func (f *fakePayloads) Open(hash string) (io.ReadCloser, int64, error) {
	if f.openErr != nil {
		return nil, 0, f.openErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	blob, ok := f.blobs[hash]
	if !ok {
		return nil, 0, fmt.Errorf("payload for %s: %w", hash, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(blob)), int64(len(blob)), nil
}

func (f *fakePayloads) Exists(hash string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[hash]
	return ok
}

type fakeSpool struct {
	store     *fakePayloads
	buf       bytes.Buffer
	aborted   bool
	committed bool
}

func (s *fakeSpool) Write(p []byte) (int, error) { return s.buf.Write(p) }

func (s *fakeSpool) Commit(hash, ext string) error {
	s.committed = true
	return s.store.Put(hash, ext, s.buf.Bytes())
}

func (s *fakeSpool) Abort() error {
	s.aborted = true
	return nil
}

type fakeTelemetry struct {
	mu        sync.Mutex
	spans     map[string]domain.Span
	receipts  []domain.Receipt
	insertErr error
	nextID    int64
}

var _ driven.TelemetryStore = (*fakeTelemetry)(nil)

func newFakeTelemetry() *fakeTelemetry {
	return &fakeTelemetry{spans: make(map[string]domain.Span)}
}

func (f *fakeTelemetry) UpsertSpan(_ context.Context, span domain.Span) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.spans[span.SpanID]; ok {
		if span.EnvelopeID == nil {
			span.EnvelopeID = existing.EnvelopeID
		}
		if span.ContentHash == "" {
			span.ContentHash = existing.ContentHash
		}
	}
	f.spans[span.SpanID] = span
	return nil
}

func (f *fakeTelemetry) BindSpanEnvelope(_ context.Context, spanID string, envelopeID int64, contentHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	span, ok := f.spans[spanID]
	if !ok {
		return domain.ErrNotFound
	}
	span.EnvelopeID = &envelopeID
	span.ContentHash = contentHash
	f.spans[spanID] = span
	return nil
}

func (f *fakeTelemetry) GetSpan(_ context.Context, spanID string) (*domain.Span, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if span, ok := f.spans[spanID]; ok {
		return &span, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTelemetry) InsertReceipt(_ context.Context, receipt domain.Receipt) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.nextID++
	receipt.ID = f.nextID
	f.receipts = append(f.receipts, receipt)
	return receipt.ID, nil
}

func (f *fakeTelemetry) PageReceipts(_ context.Context, limit, offset int) ([]domain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Receipt, len(f.receipts))
	copy(out, f.receipts)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTelemetry) PageErrors(ctx context.Context, limit, offset int) ([]domain.Receipt, error) {
	all, _ := f.PageReceipts(ctx, len(f.receipts), 0)
	var errs []domain.Receipt
	for _, r := range all {
		if !r.OK {
			errs = append(errs, r)
		}
	}
	if offset > len(errs) {
		offset = len(errs)
	}
	errs = errs[offset:]
	if len(errs) > limit {
		errs = errs[:limit]
	}
	return errs, nil
}

func (f *fakeTelemetry) PageByCode(ctx context.Context, code domain.Code, limit, offset int) ([]domain.Receipt, error) {
	all, _ := f.PageReceipts(ctx, len(f.receipts), 0)
	var matched []domain.Receipt
	for _, r := range all {
		if r.Code == code {
			matched = append(matched, r)
		}
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeTelemetry) CountForEnvelope(_ context.Context, envelopeID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, r := range f.receipts {
		if r.EnvelopeID != nil && *r.EnvelopeID == envelopeID {
			count++
		}
	}
	return count, nil
}

func (f *fakeTelemetry) all() []domain.Receipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Receipt, len(f.receipts))
	copy(out, f.receipts)
	return out
}

type fakeSink struct {
	mu    sync.Mutex
	lines []string
	err   error
}

var _ driven.ReceiptSink = (*fakeSink)(nil)

func (f *fakeSink) WriteLine(_, _, line string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeSink) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lines))
	copy(out, f.lines)
	return out
}

type fakeScheduler struct {
	mu     sync.Mutex
	hashes []string
}

var _ driven.UploadScheduler = (*fakeScheduler)(nil)

func (f *fakeScheduler) ScheduleUpload(contentHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes = append(f.hashes, contentHash)
}

func (f *fakeScheduler) scheduled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.hashes))
	copy(out, f.hashes)
	return out
}
