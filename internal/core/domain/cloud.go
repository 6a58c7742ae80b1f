package domain

import "io"

// FolderRef identifies a folder in the remote object store.
type FolderRef struct {
	ID string
}

// ObjectRef identifies an object in the remote object store together with
// the metadata that reconciliation and verification key off.
type ObjectRef struct {
	ID string

	// Digest is the remote-computed checksum ("" when not reported).
	Digest string

	// Bytes is the remote-reported size, -1 when not reported.
	Bytes int64
}

// UploadSpec describes one resumable upload. The content hash doubles as the
// idempotency key so a retried upload of the same payload converges on one
// remote object.
type UploadSpec struct {
	FolderID       string
	ContentHash    string
	Bytes          int64
	MIME           string
	Ext            string
	ReceivedAtUTC  string
	IdempotencyKey string

	// Body streams the payload. The caller retains ownership and closes it.
	Body io.Reader

	// OnProgress, when non-nil, receives monotonically increasing written
	// byte counts. Best effort; must not block.
	OnProgress func(written, total int64)
}
