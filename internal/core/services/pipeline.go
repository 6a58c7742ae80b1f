package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"syscall"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
	"github.com/mfme-labs/kapsel/internal/core/ports/driving"
	"github.com/mfme-labs/kapsel/internal/logger"
)

// DefaultMaxPayloadBytes is the ingestion size ceiling (50 MiB).
const DefaultMaxPayloadBytes = 50 * 1024 * 1024

// Ensure IngestionPipeline implements the driving port.
var _ driving.Ingestor = (*IngestionPipeline)(nil)

// IngestionPipeline turns capture attempts into envelopes and receipts:
// adapter → hash → dedup check → persist → telemetry → schedule upload.
type IngestionPipeline struct {
	envelopes driven.EnvelopeStore
	payloads  driven.PayloadStore
	ledger    *TelemetryLedger
	uploads   driven.UploadScheduler
	maxBytes  int64
}

// NewIngestionPipeline creates a pipeline. uploads may be nil when cloud
// sync is not configured; maxBytes <= 0 selects DefaultMaxPayloadBytes.
func NewIngestionPipeline(
	envelopes driven.EnvelopeStore,
	payloads driven.PayloadStore,
	ledger *TelemetryLedger,
	uploads driven.UploadScheduler,
	maxBytes int64,
) *IngestionPipeline {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}
	return &IngestionPipeline{
		envelopes: envelopes,
		payloads:  payloads,
		ledger:    ledger,
		uploads:   uploads,
		maxBytes:  maxBytes,
	}
}

// Save runs one capture attempt to exactly one receipt and, on success,
// exactly one envelope. Faults never propagate: every failure is
// classified into a taxonomy code and returned as SaveFailed.
func (p *IngestionPipeline) Save(ctx context.Context, capture domain.Capture) domain.SaveOutcome {
	adapter := capture.Adapter
	if adapter == "" {
		adapter = domain.AdapterShare
	}

	// 1. Open a span; it is persisted immediately so a crash mid-attempt
	// still leaves a trace.
	span := p.ledger.Begin(ctx, adapter)

	// 2. Validate, hash, and persist the raw payload. All checks run
	// before any durable side effect: a rejected capture leaves no
	// partial payload file.
	candidate, err := p.buildCandidate(ctx, capture)
	if err != nil {
		return p.fail(ctx, adapter, span, err)
	}

	// 3. Insert or collapse onto the existing envelope for this hash.
	env, isNew, err := p.envelopes.InsertOrGet(ctx, candidate)
	if err != nil {
		return p.fail(ctx, adapter, span, err)
	}

	code := domain.CodeOkDuplicate
	if isNew {
		code = domain.CodeOkNew
	}

	// 4. Record the outcome and resolve the span.
	p.ledger.Emit(ctx, EmitParams{
		OK:          true,
		Code:        code,
		Adapter:     adapter,
		SpanID:      span.SpanID,
		EnvelopeID:  &env.ID,
		ContentHash: env.ContentHash,
	})
	p.ledger.Bind(ctx, span.SpanID, env.ID, env.ContentHash)
	p.ledger.End(ctx, span)

	// 5. First write schedules the cloud upload; duplicates never
	// re-trigger it, so repeated local shares of identical content cannot
	// cause duplicate remote writes.
	if isNew && p.uploads != nil {
		p.uploads.ScheduleUpload(env.ContentHash)
	}

	status := domain.SaveDuplicate
	if isNew {
		status = domain.SaveNew
	}
	logger.Debug("ingest: %s %s envelope=%d hash=%s", adapter, status, env.ID, env.ContentHash)
	return domain.SaveOutcome{Status: status, EnvelopeID: env.ID, Code: code}
}

// fail classifies the fault, emits the failure receipt, and closes the
// span. The span is never left un-ended.
func (p *IngestionPipeline) fail(ctx context.Context, adapter string, span domain.Span, err error) domain.SaveOutcome {
	code := ClassifyLocal(err)
	p.ledger.Emit(ctx, EmitParams{
		OK:      false,
		Code:    code,
		Adapter: adapter,
		SpanID:  span.SpanID,
		Message: err.Error(),
	})
	p.ledger.End(ctx, span)
	logger.Debug("ingest: %s failed code=%s: %v", adapter, code, err)
	return domain.SaveOutcome{Status: domain.SaveFailed, Code: code, Err: err}
}

// buildCandidate validates the capture, computes its content hash, and
// stores the payload under that hash.
func (p *IngestionPipeline) buildCandidate(ctx context.Context, capture domain.Capture) (domain.EnvelopeCandidate, error) {
	var zero domain.EnvelopeCandidate

	if err := capture.Validate(); err != nil {
		return zero, err
	}
	if capture.ReceivedAt.IsZero() {
		return zero, fmt.Errorf("%w: missing observation time", domain.ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	metaJSON, err := capture.MetaJSON()
	if err != nil {
		return zero, fmt.Errorf("encoding metadata: %w", err)
	}

	ext := guessExt(capture.MIME, capture.Filename)

	var hash string
	if capture.Body == nil {
		payload := []byte(capture.Text)
		if int64(len(payload)) > p.maxBytes {
			return zero, domain.ErrOversize
		}
		hash = HashBytes(payload)
		if err := p.payloads.Put(hash, ext, payload); err != nil {
			return zero, fmt.Errorf("storing payload: %w", err)
		}
	} else {
		hash, err = p.spoolStream(capture.Body, ext)
		if err != nil {
			return zero, err
		}
	}

	text := ""
	if capture.Body == nil {
		text = capture.Text
	}

	return domain.EnvelopeCandidate{
		ContentHash: hash,
		MIME:        capture.MIME,
		Text:        text,
		Filename:    capture.Filename,
		SourceRef:   capture.SourceRef,
		ReceivedAt:  capture.ReceivedAt.UTC(),
		MetaJSON:    metaJSON,
	}, nil
}

// spoolStream hashes the stream while spooling it, enforcing the size
// ceiling before the payload is committed under its final name. The spool
// is aborted on every failure path.
func (p *IngestionPipeline) spoolStream(body io.Reader, ext string) (string, error) {
	spool, err := p.payloads.Spool()
	if err != nil {
		return "", fmt.Errorf("opening spool: %w", err)
	}

	// Read one byte past the ceiling so oversize is detected without
	// consuming the whole source.
	limited := io.LimitReader(body, p.maxBytes+1)
	hash, n, err := HashReader(io.TeeReader(limited, spool))
	switch {
	case err != nil:
		_ = spool.Abort()
		return "", fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	case n == 0:
		_ = spool.Abort()
		return "", domain.ErrEmptyInput
	case n > p.maxBytes:
		_ = spool.Abort()
		return "", domain.ErrOversize
	}

	if err := spool.Commit(hash, ext); err != nil {
		return "", fmt.Errorf("committing payload: %w", err)
	}
	return hash, nil
}

// ClassifyLocal maps a local ingestion fault onto its taxonomy code.
func ClassifyLocal(err error) domain.Code {
	switch {
	case errors.Is(err, domain.ErrEmptyInput):
		return domain.CodeEmptyInput
	case errors.Is(err, domain.ErrOversize):
		return domain.CodeOversize
	case errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, fs.ErrPermission):
		return domain.CodePermissionDenied
	case errors.Is(err, domain.ErrStorageQuota) || errors.Is(err, syscall.ENOSPC):
		return domain.CodeStorageQuota
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return domain.CodeDeviceUnavailable
	default:
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return domain.CodeDeviceUnavailable
		}
		return domain.CodeUnknown
	}
}

// mimeExt maps common media types onto payload file extensions.
var mimeExt = map[string]string{
	"image/jpeg":       "jpg",
	"image/png":        "png",
	"image/webp":       "webp",
	"video/mp4":        "mp4",
	"audio/wav":        "wav",
	"audio/mpeg":       "mp3",
	"application/pdf":  "pdf",
	"text/plain":       "txt",
	"application/json": "json",
}

// guessExt derives a payload file extension: the display name's suffix
// when short enough, then a fixed MIME table, falling back to "".
func guessExt(mime, displayName string) string {
	if i := strings.LastIndexByte(displayName, '.'); i >= 0 {
		ext := strings.ToLower(displayName[i+1:])
		if ext != "" && len(ext) <= 8 {
			return ext
		}
	}
	return mimeExt[strings.ToLower(mime)]
}
