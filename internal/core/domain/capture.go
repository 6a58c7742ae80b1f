package domain

import (
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// Adapter names for the built-in capture sources. The pipeline is
// source-agnostic beyond the Capture contract; these names only feed
// telemetry and the envelope's SourceRef default.
const (
	AdapterShare    = "share"
	AdapterCamera   = "camera"
	AdapterMic      = "mic"
	AdapterFiles    = "files"
	AdapterLocation = "location"
	AdapterSensors  = "sensors"
	AdapterSmsIn    = "sms_in"
	AdapterSmsOut   = "sms_out"
	AdapterWatch    = "watch"
)

// Capture is the uniform record every capture source hands to the ingestion
// pipeline: either Text or Body carries the payload, plus media type,
// provenance and adapter-specific metadata.
type Capture struct {
	// Adapter is the operation name used for spans and receipts.
	Adapter string

	// Text is the payload for text-like sources. Used when Body is nil.
	Text string

	// Body streams the payload for binary sources. Takes precedence over
	// Text when non-nil.
	Body io.Reader

	MIME       string
	Filename   string
	SourceRef  string
	ReceivedAt time.Time
	Meta       map[string]any
}

// MetaJSON encodes the metadata map to a stable JSON string. Instants are
// rendered as RFC 3339. Returns "" for empty metadata.
func (c Capture) MetaJSON() (string, error) {
	if len(c.Meta) == 0 {
		return "", nil
	}
	sanitised := make(map[string]any, len(c.Meta))
	for k, v := range c.Meta {
		if t, ok := v.(time.Time); ok {
			sanitised[k] = t.UTC().Format(time.RFC3339)
			continue
		}
		sanitised[k] = v
	}
	raw, err := json.Marshal(sanitised)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Validate checks the capture before any persistent side effect happens.
// A capture must carry a payload, and the SMS adapters additionally require
// a counterpart identity in metadata.
func (c Capture) Validate() error {
	if c.Body == nil && c.Text == "" {
		return ErrEmptyInput
	}
	switch c.Adapter {
	case AdapterSmsIn:
		if s, _ := c.Meta["sender"].(string); s == "" {
			return ErrEmptyInput
		}
	case AdapterSmsOut:
		if p, _ := c.Meta["phone"].(string); p == "" {
			return ErrEmptyInput
		}
	}
	return nil
}

// NewShareText builds a capture for shared text.
func NewShareText(text, sourceRef string, receivedAt time.Time) Capture {
	return Capture{
		Adapter:    AdapterShare,
		Text:       text,
		MIME:       "text/plain",
		SourceRef:  sourceRef,
		ReceivedAt: receivedAt,
	}
}

// NewShareStream builds a capture for a shared byte stream.
func NewShareStream(body io.Reader, mime, displayName, sourceRef string, receivedAt time.Time) Capture {
	return Capture{
		Adapter:    AdapterShare,
		Body:       body,
		MIME:       mime,
		Filename:   displayName,
		SourceRef:  sourceRef,
		ReceivedAt: receivedAt,
	}
}

// NewCameraCapture builds a capture for a camera frame.
func NewCameraCapture(frame []byte, filename string, receivedAt time.Time, meta map[string]any) Capture {
	return Capture{
		Adapter:    AdapterCamera,
		Body:       bytes.NewReader(frame),
		MIME:       "image/jpeg",
		Filename:   filename,
		SourceRef:  AdapterCamera,
		ReceivedAt: receivedAt,
		Meta:       meta,
	}
}

// NewMicCapture builds a capture for recorded audio.
func NewMicCapture(audio []byte, filename string, receivedAt time.Time, meta map[string]any) Capture {
	return Capture{
		Adapter:    AdapterMic,
		Body:       bytes.NewReader(audio),
		MIME:       "audio/wav",
		Filename:   filename,
		SourceRef:  AdapterMic,
		ReceivedAt: receivedAt,
		Meta:       meta,
	}
}

// NewFileCapture builds a capture for a picked or dropped file.
func NewFileCapture(body io.Reader, mime, filename string, receivedAt time.Time, meta map[string]any) Capture {
	return Capture{
		Adapter:    AdapterFiles,
		Body:       body,
		MIME:       mime,
		Filename:   filename,
		SourceRef:  AdapterFiles,
		ReceivedAt: receivedAt,
		Meta:       meta,
	}
}

// NewLocationCapture builds a capture for a location snapshot. The JSON
// document is both the payload and the metadata.
func NewLocationCapture(locationJSON string, receivedAt time.Time) Capture {
	return Capture{
		Adapter:    AdapterLocation,
		Text:       locationJSON,
		MIME:       "application/json",
		SourceRef:  AdapterLocation,
		ReceivedAt: receivedAt,
	}
}

// NewSensorsCapture builds a capture for a sensor snapshot.
func NewSensorsCapture(sensorsJSON string, receivedAt time.Time) Capture {
	return Capture{
		Adapter:    AdapterSensors,
		Text:       sensorsJSON,
		MIME:       "application/json",
		SourceRef:  AdapterSensors,
		ReceivedAt: receivedAt,
	}
}

// NewSmsIn builds a capture for a received SMS. The message body is the
// payload; the sender travels in metadata.
func NewSmsIn(sender, body string, receivedAt time.Time) Capture {
	return Capture{
		Adapter:    AdapterSmsIn,
		Text:       body,
		MIME:       "text/plain",
		SourceRef:  AdapterSmsIn,
		ReceivedAt: receivedAt,
		Meta: map[string]any{
			"sender":        sender,
			"receivedAtUtc": receivedAt,
		},
	}
}

// NewSmsOut builds a capture for a sent SMS.
func NewSmsOut(phone, body string, sentAt time.Time) Capture {
	return Capture{
		Adapter:    AdapterSmsOut,
		Text:       body,
		MIME:       "text/plain",
		SourceRef:  AdapterSmsOut,
		ReceivedAt: sentAt,
		Meta: map[string]any{
			"phone": phone,
		},
	}
}
