package domain

// SaveStatus discriminates the outcome of one ingestion attempt.
type SaveStatus int

const (
	// SaveNew means a new envelope was created.
	SaveNew SaveStatus = iota

	// SaveDuplicate means the content hash collapsed onto an existing
	// envelope. Duplicate is an expected outcome, not an error.
	SaveDuplicate

	// SaveFailed means the attempt was rejected or faulted. The failure is
	// classified in the emitted receipt; Err carries the underlying cause.
	SaveFailed
)

// String returns a short label for logs.
func (s SaveStatus) String() string {
	switch s {
	case SaveNew:
		return "new"
	case SaveDuplicate:
		return "duplicate"
	case SaveFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SaveOutcome is the result handed back to capture adapters. On SaveNew and
// SaveDuplicate, EnvelopeID references the single envelope for the content
// hash. On SaveFailed, Code carries the taxonomy classification and Err the
// cause; callers never see a raw fault propagate.
type SaveOutcome struct {
	Status     SaveStatus
	EnvelopeID int64
	Code       Code
	Err        error
}
