package domain

// Code is a wire-stable receipt taxonomy string. Codes, not Go error types,
// are the contract for anything that inspects the audit trail later.
type Code string

// Success codes.
const (
	CodeOkNew             Code = "ok_new"
	CodeOkDuplicate       Code = "ok_duplicate"
	CodeOkAlreadyBound    Code = "ok_already_bound"
	CodeOkRebound         Code = "ok_rebound"
	CodeOkUploaded        Code = "ok_uploaded"
	CodeOkDuplicateUpload Code = "ok_duplicate_upload"
	CodeOkVerified        Code = "ok_verified"
	CodeOkVerifyQueued    Code = "ok_verify_queued"
)

// Failure codes.
const (
	CodeEmptyInput           Code = "empty_input"
	CodeOversize             Code = "oversize"
	CodePermissionDenied     Code = "permission_denied"
	CodePermissionDeniedAuth Code = "permission_denied_auth"
	CodeDeviceUnavailable    Code = "device_unavailable"
	CodeStorageQuota         Code = "storage_quota"
	CodeDigestMismatch       Code = "digest_mismatch"
	CodeNetworkBackoff       Code = "network_backoff"
	CodeResolverError        Code = "resolver_error"
	CodeErrorNotFound        Code = "error_not_found"
	CodeUnknownDriveError    Code = "unknown_drive_error"
	CodeErrorNoAccount       Code = "error_no_account"
	CodeUnknown              Code = "unknown"
)

// OK reports whether the code represents a success outcome.
func (c Code) OK() bool {
	switch c {
	case CodeOkNew, CodeOkDuplicate, CodeOkAlreadyBound, CodeOkRebound,
		CodeOkUploaded, CodeOkDuplicateUpload, CodeOkVerified, CodeOkVerifyQueued:
		return true
	}
	return false
}

// Span is a timing and correlation record bracketing one logical operation.
// It is created at operation start with Start == End, persisted immediately,
// and re-persisted once the operation finishes. Times are monotonic-clock
// nanoseconds, not wall-clock.
type Span struct {
	SpanID      string
	Adapter     string
	StartNanos  int64
	EndNanos    int64
	EnvelopeID  *int64
	ContentHash string
}

// Receipt is an immutable audit entry recording the outcome of one attempt.
// Receipts are append-only: never mutated, never deleted.
type Receipt struct {
	ID          int64
	OK          bool
	Code        Code
	Adapter     string
	TsUTC       string // ISO-8601 wall-clock, always ending in Z
	EnvelopeID  *int64
	ContentHash string
	Message     string
	SpanID      string

	// ReceiptHash is the SHA-256 of the receipt's canonical JSON encoding,
	// making the receipt log tamper-evident.
	ReceiptHash string
}
