package domain

import "time"

// CloudBinding maps one envelope to one object in the remote store.
// A binding is only ever written after upload verification or by the
// reconciliation sweep; ingestion never creates one directly.
type CloudBinding struct {
	// EnvelopeID is the bound envelope. At most one binding exists per
	// envelope.
	EnvelopeID int64

	// RemoteID is the remote object identifier, unique across bindings.
	RemoteID string

	// UploadedAt is when the binding was recorded (UTC).
	UploadedAt time.Time

	// RemoteDigest is the digest reported by the remote store ("" when the
	// remote did not report one).
	RemoteDigest string

	// RemoteSize is the byte length reported by the remote store
	// (-1 when unknown).
	RemoteSize int64
}
