package domain

import "errors"

// Domain errors represent expected failure classes. The ingestion pipeline
// and sync engine classify them into wire taxonomy codes; adapters wrap
// infrastructure faults into these sentinels with %w so errors.Is works
// across package boundaries.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyInput indicates a capture with no usable content.
	ErrEmptyInput = errors.New("empty input")

	// ErrOversize indicates a payload exceeding the configured maximum.
	ErrOversize = errors.New("payload exceeds size limit")

	// ErrPermissionDenied indicates a local permission failure.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStorageQuota indicates local storage is full.
	ErrStorageQuota = errors.New("storage quota exhausted")

	// ErrDeviceUnavailable indicates a local I/O fault reading the source.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrDigestMismatch indicates the remote object's reported size differs
	// from the local payload length after upload.
	ErrDigestMismatch = errors.New("remote digest mismatch")

	// Cloud errors.

	// ErrCloudAuth indicates the remote store rejected our credentials.
	// Not retried automatically: requires user re-auth.
	ErrCloudAuth = errors.New("cloud authorisation failed")

	// ErrCloudBackoff indicates a transient network or server failure.
	// Safe to retry with backoff.
	ErrCloudBackoff = errors.New("cloud temporarily unavailable")

	// ErrRemoteNotFound indicates the remote object does not exist.
	ErrRemoteNotFound = errors.New("remote object not found")

	// ErrNoAccount indicates no cloud account is configured.
	ErrNoAccount = errors.New("no cloud account configured")

	// ErrReconcileInProgress indicates a reconciliation sweep is already
	// running. Sweeps are serialised against themselves.
	ErrReconcileInProgress = errors.New("reconciliation already in progress")
)
