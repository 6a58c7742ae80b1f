package driven

import "io"

// PayloadStore is the content-addressed local blob store holding raw
// payload bytes keyed by content hash. Writes follow a temp-name + fsync +
// atomic-rename discipline so a crash never leaves a partial payload
// visible under its final name.
type PayloadStore interface {
	// Spool returns a writer accumulating payload bytes whose hash is not
	// yet known. Commit moves the spooled bytes under the content hash;
	// Abort discards them. Exactly one of the two must be called.
	Spool() (PayloadSpool, error)

	// Put stores an in-memory payload under its hash.
	Put(hash, ext string, payload []byte) error

	// Open returns the payload for a hash together with its byte length,
	// or an error wrapping domain.ErrNotFound.
	Open(hash string) (io.ReadCloser, int64, error)

	// Exists reports whether a payload is stored for the hash.
	Exists(hash string) bool
}

// PayloadSpool buffers one payload while it is being hashed.
type PayloadSpool interface {
	io.Writer

	// Commit durably stores the spooled bytes under the hash.
	Commit(hash, ext string) error

	// Abort removes the spooled bytes.
	Abort() error
}
