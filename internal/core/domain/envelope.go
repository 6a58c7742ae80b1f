package domain

import "time"

// Envelope is the canonical record of one piece of captured content.
// Envelopes are created once on the first ingestion of a new content hash
// and are never updated in place.
type Envelope struct {
	// ID is the surrogate key assigned by the store at first insert.
	ID int64

	// ContentHash is the lowercase hex SHA-256 of the raw payload bytes.
	// It is globally unique and serves as the deduplication key.
	ContentHash string

	// MIME is the payload media type ("" when unknown).
	MIME string

	// Text holds the primary content preview for text-like sources
	// ("" when the payload is binary).
	Text string

	// Filename is the original display name, if the source provided one.
	Filename string

	// SourceRef identifies the originating adapter or application.
	SourceRef string

	// ReceivedAt is the original observation time in UTC. It is preserved
	// across duplicate collapses: the first ingestion wins.
	ReceivedAt time.Time

	// MetaJSON carries opaque adapter-specific metadata ("" when absent).
	MetaJSON string
}

// EnvelopeCandidate is an Envelope before it has been assigned an ID.
type EnvelopeCandidate struct {
	ContentHash string
	MIME        string
	Text        string
	Filename    string
	SourceRef   string
	ReceivedAt  time.Time
	MetaJSON    string
}

// Envelope converts the candidate into an unpersisted Envelope.
func (c EnvelopeCandidate) Envelope() Envelope {
	return Envelope{
		ContentHash: c.ContentHash,
		MIME:        c.MIME,
		Text:        c.Text,
		Filename:    c.Filename,
		SourceRef:   c.SourceRef,
		ReceivedAt:  c.ReceivedAt,
		MetaJSON:    c.MetaJSON,
	}
}
