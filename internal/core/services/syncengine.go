package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mfme-labs/kapsel/internal/core/domain"
	"github.com/mfme-labs/kapsel/internal/core/ports/driven"
	"github.com/mfme-labs/kapsel/internal/core/ports/driving"
	"github.com/mfme-labs/kapsel/internal/logger"
)

// Telemetry adapter names for sync operations.
const (
	adapterUpload     = "upload"
	adapterReconciler = "reconciler"
	adapterVerify     = "cloud_verify"
)

// DefaultRemoteRoot is the top-level remote folder name.
const DefaultRemoteRoot = "kapsel"

// Ensure CloudSyncEngine implements the driving port.
var _ driving.Syncer = (*CloudSyncEngine)(nil)

// CloudSyncEngine uploads new envelopes to the remote store and
// periodically reconciles the local binding table against remote truth.
// A binding is only written after verification, so a crashed upload leaves
// no durable state and recovery is simply rescheduling.
type CloudSyncEngine struct {
	envelopes driven.EnvelopeStore
	bindings  driven.CloudBindingStore
	payloads  driven.PayloadStore
	cloud     driven.CloudStore
	ledger    *TelemetryLedger
	root      string
	clock     func() time.Time

	// reconcileMu serialises sweeps against each other, not against
	// uploads.
	reconcileMu sync.Mutex

	// OnProgress, when set, observes upload progress per content hash.
	OnProgress func(contentHash string, written, total int64)
}

// NewCloudSyncEngine creates a sync engine. cloud may be nil when no
// account is configured; every operation then reports error_no_account.
func NewCloudSyncEngine(
	envelopes driven.EnvelopeStore,
	bindings driven.CloudBindingStore,
	payloads driven.PayloadStore,
	cloud driven.CloudStore,
	ledger *TelemetryLedger,
	remoteRoot string,
) *CloudSyncEngine {
	if remoteRoot == "" {
		remoteRoot = DefaultRemoteRoot
	}
	return &CloudSyncEngine{
		envelopes: envelopes,
		bindings:  bindings,
		payloads:  payloads,
		cloud:     cloud,
		ledger:    ledger,
		root:      remoteRoot,
		clock:     time.Now,
	}
}

// WithClock overrides the wall clock. For tests.
func (e *CloudSyncEngine) WithClock(clock func() time.Time) *CloudSyncEngine {
	e.clock = clock
	return e
}

// folderPath derives the deterministic remote folder for an envelope from
// its received date: <root>/<YYYY>/<MM>.
func (e *CloudSyncEngine) folderPath(receivedAt time.Time) []string {
	utc := receivedAt.UTC()
	return []string{e.root, utc.Format("2006"), utc.Format("01")}
}

// UploadByHash runs the upload state machine for the envelope with the
// given content hash, emitting exactly one receipt for the attempt.
func (e *CloudSyncEngine) UploadByHash(ctx context.Context, contentHash string) (domain.Code, error) {
	span := e.ledger.Begin(ctx, adapterUpload)
	defer e.ledger.End(ctx, span)

	if e.cloud == nil {
		e.ledger.Emit(ctx, EmitParams{
			OK: false, Code: domain.CodeErrorNoAccount, Adapter: adapterUpload,
			SpanID: span.SpanID, ContentHash: contentHash,
		})
		return domain.CodeErrorNoAccount, domain.ErrNoAccount
	}

	env, err := e.envelopes.FindByHash(ctx, contentHash)
	if err != nil {
		// The envelope vanished between scheduling and execution.
		code := domain.CodeErrorNotFound
		if !errors.Is(err, domain.ErrNotFound) {
			code = domain.CodeUnknown
		}
		e.ledger.Emit(ctx, EmitParams{
			OK: false, Code: code, Adapter: adapterUpload,
			SpanID: span.SpanID, ContentHash: contentHash, Message: err.Error(),
		})
		return code, err
	}

	e.ledger.Bind(ctx, span.SpanID, env.ID, env.ContentHash)

	code, err := e.uploadEnvelope(ctx, span, *env)
	if err != nil {
		e.ledger.Emit(ctx, EmitParams{
			OK: false, Code: code, Adapter: adapterUpload,
			SpanID: span.SpanID, EnvelopeID: &env.ID,
			ContentHash: env.ContentHash, Message: err.Error(),
		})
		return code, err
	}

	e.ledger.Emit(ctx, EmitParams{
		OK: true, Code: code, Adapter: adapterUpload,
		SpanID: span.SpanID, EnvelopeID: &env.ID, ContentHash: env.ContentHash,
	})
	return code, nil
}

// uploadEnvelope walks NoBinding → FolderResolved → remote-duplicate bind,
// or upload → verify → bind. Failures leave no binding, so retries simply
// re-run the machine from the top.
func (e *CloudSyncEngine) uploadEnvelope(ctx context.Context, span domain.Span, env domain.Envelope) (domain.Code, error) {
	// Idempotent re-entry: the work item may be scheduled more than once.
	if existing, err := e.bindings.FindByEnvelope(ctx, env.ID); err == nil && existing != nil {
		return domain.CodeOkAlreadyBound, nil
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.CodeUnknown, fmt.Errorf("looking up binding: %w", err)
	}

	folder, err := e.cloud.EnsureFolder(ctx, e.folderPath(env.ReceivedAt))
	if err != nil {
		return classifyCloud(err, domain.CodeResolverError), fmt.Errorf("resolving remote folder: %w", err)
	}

	// Content may already be remote via another device or a previous
	// partial run; bind without re-uploading bytes.
	if ref, err := e.cloud.FindByHash(ctx, env.ContentHash, folder.ID); err != nil {
		return classifyCloud(err, domain.CodeUnknownDriveError), fmt.Errorf("remote hash lookup: %w", err)
	} else if ref != nil {
		if err := e.bind(ctx, env.ID, *ref); err != nil {
			return domain.CodeUnknown, err
		}
		return domain.CodeOkDuplicateUpload, nil
	}

	payload, size, err := e.payloads.Open(env.ContentHash)
	if err != nil {
		return domain.CodeDeviceUnavailable, fmt.Errorf("opening local payload: %w", err)
	}
	defer payload.Close()

	spec := domain.UploadSpec{
		FolderID:       folder.ID,
		ContentHash:    env.ContentHash,
		Bytes:          size,
		MIME:           env.MIME,
		Ext:            guessExt(env.MIME, env.Filename),
		ReceivedAtUTC:  env.ReceivedAt.UTC().Format(time.RFC3339),
		IdempotencyKey: env.ContentHash,
		Body:           payload,
	}
	if e.OnProgress != nil {
		hash := env.ContentHash
		spec.OnProgress = func(written, total int64) {
			e.OnProgress(hash, written, total)
		}
	}

	ref, err := e.cloud.UploadResumable(ctx, spec)
	if err != nil {
		return classifyCloud(err, domain.CodeUnknownDriveError), fmt.Errorf("uploading: %w", err)
	}

	// Verification gates the bind: re-fetch remote metadata and require
	// the reported size to equal the local byte length. An unverified
	// object is never trusted; the retry re-attempts the upload.
	meta, err := e.cloud.GetMetadata(ctx, ref.ID)
	if err != nil {
		return classifyCloud(err, domain.CodeUnknownDriveError), fmt.Errorf("verifying upload: %w", err)
	}
	if meta == nil || meta.Bytes != size {
		reported := int64(-1)
		if meta != nil {
			reported = meta.Bytes
		}
		return domain.CodeDigestMismatch,
			fmt.Errorf("%w: remote reports %d bytes, local payload is %d", domain.ErrDigestMismatch, reported, size)
	}

	if err := e.bind(ctx, env.ID, *meta); err != nil {
		return domain.CodeUnknown, err
	}
	return domain.CodeOkUploaded, nil
}

func (e *CloudSyncEngine) bind(ctx context.Context, envelopeID int64, ref domain.ObjectRef) error {
	binding := domain.CloudBinding{
		EnvelopeID:   envelopeID,
		RemoteID:     ref.ID,
		UploadedAt:   e.clock().UTC(),
		RemoteDigest: ref.Digest,
		RemoteSize:   ref.Bytes,
	}
	if err := e.bindings.Upsert(ctx, binding); err != nil {
		return fmt.Errorf("persisting binding: %w", err)
	}
	return nil
}

// Reconcile audits the binding table against remote truth: orphaned
// bindings are removed, unbound envelopes with remote copies are rebound,
// bound envelopes whose remote object vanished are rebound or reported
// missing. Every mutation is an idempotent upsert or delete, so the sweep
// is safe to repeat and to run alongside uploads.
func (e *CloudSyncEngine) Reconcile(ctx context.Context) (driving.ReconcileReport, error) {
	var report driving.ReconcileReport

	if !e.reconcileMu.TryLock() {
		return report, domain.ErrReconcileInProgress
	}
	defer e.reconcileMu.Unlock()

	if e.cloud == nil {
		return report, domain.ErrNoAccount
	}

	span := e.ledger.Begin(ctx, adapterReconciler)
	defer e.ledger.End(ctx, span)

	// 1. Tombstone orphaned bindings.
	orphans, err := e.bindings.ListOrphans(ctx)
	if err != nil {
		return report, fmt.Errorf("listing orphans: %w", err)
	}
	for _, orphan := range orphans {
		if err := e.bindings.DeleteByEnvelope(ctx, orphan.EnvelopeID); err != nil {
			return report, fmt.Errorf("removing orphan binding %d: %w", orphan.EnvelopeID, err)
		}
		report.OrphansRemoved++
	}

	// 2/3. Walk every envelope and converge its binding on remote truth.
	envelopes, err := e.envelopes.All(ctx)
	if err != nil {
		return report, fmt.Errorf("listing envelopes: %w", err)
	}
	for _, env := range envelopes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.reconcileEnvelope(ctx, span, env, &report); err != nil {
			// Auth failures poison the whole sweep; anything else is
			// recorded per envelope and the sweep continues.
			if errors.Is(err, domain.ErrCloudAuth) {
				return report, err
			}
			logger.Warn("reconcile: envelope %d: %v", env.ID, err)
		}
	}

	logger.Info("reconcile: orphans=%d rebound=%d confirmed=%d missing=%d",
		report.OrphansRemoved, report.Rebound, report.Confirmed, report.Missing)
	return report, nil
}

func (e *CloudSyncEngine) reconcileEnvelope(ctx context.Context, span domain.Span, env domain.Envelope, report *driving.ReconcileReport) error {
	binding, err := e.bindings.FindByEnvelope(ctx, env.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("looking up binding: %w", err)
	}

	if binding == nil {
		return e.rebindByHash(ctx, span, env, report)
	}

	meta, err := e.cloud.GetMetadata(ctx, binding.RemoteID)
	if err != nil {
		e.emitReconcile(ctx, span, env, classifyCloud(err, domain.CodeUnknownDriveError), err)
		return err
	}
	if meta == nil {
		// Remote object gone: try to rebind before declaring it missing.
		return e.rebindByHash(ctx, span, env, report)
	}

	report.Confirmed++
	e.emitReconcile(ctx, span, env, domain.CodeOkAlreadyBound, nil)
	return nil
}

// rebindByHash looks the envelope's content up store-wide by hash and
// rebinds when found, otherwise records the content as genuinely absent.
func (e *CloudSyncEngine) rebindByHash(ctx context.Context, span domain.Span, env domain.Envelope, report *driving.ReconcileReport) error {
	ref, err := e.cloud.FindByHash(ctx, env.ContentHash, "")
	if err != nil {
		e.emitReconcile(ctx, span, env, classifyCloud(err, domain.CodeUnknownDriveError), err)
		return err
	}
	if ref == nil {
		report.Missing++
		e.emitReconcile(ctx, span, env, domain.CodeErrorNotFound, nil)
		return nil
	}
	if err := e.bind(ctx, env.ID, *ref); err != nil {
		return err
	}
	report.Rebound++
	e.emitReconcile(ctx, span, env, domain.CodeOkRebound, nil)
	return nil
}

func (e *CloudSyncEngine) emitReconcile(ctx context.Context, span domain.Span, env domain.Envelope, code domain.Code, cause error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	e.ledger.Emit(ctx, EmitParams{
		OK:          code.OK(),
		Code:        code,
		Adapter:     adapterReconciler,
		SpanID:      span.SpanID,
		EnvelopeID:  &env.ID,
		ContentHash: env.ContentHash,
		Message:     message,
	})
}

// Probe checks the remote capability, emitting cloud_verify receipts so
// the attempt is auditable whether or not it succeeds.
func (e *CloudSyncEngine) Probe(ctx context.Context) error {
	span := e.ledger.Begin(ctx, adapterVerify)
	defer e.ledger.End(ctx, span)

	if e.cloud == nil {
		e.ledger.Emit(ctx, EmitParams{
			OK: false, Code: domain.CodeErrorNoAccount, Adapter: adapterVerify, SpanID: span.SpanID,
		})
		return domain.ErrNoAccount
	}

	e.ledger.Emit(ctx, EmitParams{
		OK: true, Code: domain.CodeOkVerifyQueued, Adapter: adapterVerify, SpanID: span.SpanID,
	})

	if err := e.cloud.Probe(ctx); err != nil {
		e.ledger.Emit(ctx, EmitParams{
			OK: false, Code: classifyCloud(err, domain.CodeUnknownDriveError),
			Adapter: adapterVerify, SpanID: span.SpanID, Message: err.Error(),
		})
		return err
	}

	e.ledger.Emit(ctx, EmitParams{
		OK: true, Code: domain.CodeOkVerified, Adapter: adapterVerify, SpanID: span.SpanID,
	})
	return nil
}

// classifyCloud maps a remote-store fault onto its taxonomy code.
// Authorisation failures are never retried automatically; transient
// network and server faults are safe to retry with backoff; anything else
// falls through to the operation-specific default.
func classifyCloud(err error, fallback domain.Code) domain.Code {
	switch {
	case errors.Is(err, domain.ErrCloudAuth):
		return domain.CodePermissionDeniedAuth
	case errors.Is(err, domain.ErrCloudBackoff):
		return domain.CodeNetworkBackoff
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return domain.CodeNetworkBackoff
	default:
		return fallback
	}
}
