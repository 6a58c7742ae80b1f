package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
	"github.com/mfme-labs/kapsel/internal/logger"
)

// processEpoch anchors the monotonic clock used for span timings. Spans
// record durations, not wall-clock instants, so readings from different
// processes are not comparable.
var processEpoch = time.Now()

func monotonicNanos() int64 {
	return time.Since(processEpoch).Nanoseconds()
}

// TelemetryLedger owns the span lifecycle and receipt emission. Receipts
// travel two independent durability paths: the telemetry store (the
// authoritative read path) and the durable NDJSON sink. A failure on
// either path degrades to a logged warning and never blocks the other.
type TelemetryLedger struct {
	store driven.TelemetryStore
	sink  driven.ReceiptSink
	clock func() time.Time
}

// NewTelemetryLedger creates a ledger over the given store and sink.
func NewTelemetryLedger(store driven.TelemetryStore, sink driven.ReceiptSink) *TelemetryLedger {
	return &TelemetryLedger{
		store: store,
		sink:  sink,
		clock: time.Now,
	}
}

// WithClock overrides the wall clock. For tests.
func (l *TelemetryLedger) WithClock(clock func() time.Time) *TelemetryLedger {
	l.clock = clock
	return l
}

// Begin allocates a span for one adapter invocation and persists it
// immediately with start == end, so a crash mid-operation still leaves a
// visible "started but never finished" record.
func (l *TelemetryLedger) Begin(ctx context.Context, adapter string) domain.Span {
	now := monotonicNanos()
	span := domain.Span{
		SpanID:     uuid.NewString(),
		Adapter:    adapter,
		StartNanos: now,
		EndNanos:   now,
	}
	if err := l.store.UpsertSpan(ctx, span); err != nil {
		logger.Warn("ledger: persisting span %s: %v", span.SpanID, err)
	}
	return span
}

// End re-persists the span with the current monotonic time as its end.
// Idempotent: last write wins, calling it twice is harmless.
func (l *TelemetryLedger) End(ctx context.Context, span domain.Span) {
	span.EndNanos = monotonicNanos()
	if err := l.store.UpsertSpan(ctx, span); err != nil {
		logger.Warn("ledger: ending span %s: %v", span.SpanID, err)
	}
}

// Bind late-binds a span to the envelope its operation resolved.
func (l *TelemetryLedger) Bind(ctx context.Context, spanID string, envelopeID int64, contentHash string) {
	if err := l.store.BindSpanEnvelope(ctx, spanID, envelopeID, contentHash); err != nil {
		logger.Warn("ledger: binding span %s: %v", spanID, err)
	}
}

// EmitParams carries one receipt's content into Emit.
type EmitParams struct {
	OK          bool
	Code        domain.Code
	Adapter     string
	SpanID      string
	EnvelopeID  *int64
	ContentHash string
	Message     string
}

// Emit captures wall-clock now, canonically encodes the versioned record,
// hashes it, persists the receipt row, and appends the canonical line to
// the durable sink. Emit never fails: downstream storage errors degrade to
// best-effort writes on the surviving path, and the returned receipt
// carries a zero row ID when the store insert was lost.
func (l *TelemetryLedger) Emit(ctx context.Context, p EmitParams) domain.Receipt {
	tsUTC := l.clock().UTC().Format(time.RFC3339Nano)
	line := EncodeReceipt(ReceiptRecord{
		OK:          p.OK,
		Code:        p.Code,
		Adapter:     p.Adapter,
		TsUTC:       tsUTC,
		SpanID:      p.SpanID,
		EnvelopeID:  p.EnvelopeID,
		ContentHash: p.ContentHash,
		Message:     p.Message,
	})
	receiptHash := HashString(line)

	receipt := domain.Receipt{
		OK:          p.OK,
		Code:        p.Code,
		Adapter:     p.Adapter,
		TsUTC:       tsUTC,
		EnvelopeID:  p.EnvelopeID,
		ContentHash: p.ContentHash,
		Message:     p.Message,
		SpanID:      p.SpanID,
		ReceiptHash: receiptHash,
	}

	id, err := l.store.InsertReceipt(ctx, receipt)
	if err != nil {
		logger.Warn("ledger: persisting receipt %s: %v", receiptHash, err)
	} else {
		receipt.ID = id
	}

	if err := l.sink.WriteLine(tsUTC, receiptHash, line); err != nil {
		logger.Warn("ledger: sink write for receipt %s: %v", receiptHash, err)
	}

	return receipt
}
