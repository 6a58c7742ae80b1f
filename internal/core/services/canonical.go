package services

import (
	"strconv"
	"strings"

	"github.com/mfme-labs/kapsel/internal/core/domain"
)

// receiptRecordVersion is the canonical encoding version. Bump only with a
// new key list; existing receipt hashes must stay reproducible.
const receiptRecordVersion = 2

// ReceiptRecord is the logical content of one receipt as fed to the
// canonical encoder. Field-wise equal records encode to byte-identical
// output regardless of how they were constructed.
type ReceiptRecord struct {
	OK          bool
	Code        domain.Code
	Adapter     string
	TsUTC       string
	SpanID      string
	EnvelopeID  *int64
	ContentHash string // omitted when ""
	Message     string // omitted when ""
}

// EncodeReceipt renders the record as canonical JSON: a fixed, explicit
// key order (not lexicographic, not insertion-dependent), absent nullable
// fields omitted rather than emitted as null, and only '"' and '\'
// escaped. The receipt hash and cross-process log comparison both depend
// on this being byte-stable.
func EncodeReceipt(r ReceiptRecord) string {
	var sb strings.Builder
	sb.Grow(160)
	sb.WriteByte('{')
	first := true
	field := func(key, rendered string) {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.WriteByte('"')
		sb.WriteString(key)
		sb.WriteString(`":`)
		sb.WriteString(rendered)
	}

	field("version", strconv.Itoa(receiptRecordVersion))
	field("ok", strconv.FormatBool(r.OK))
	field("code", quote(string(r.Code)))
	field("adapter", quote(r.Adapter))
	field("ts_utc", quote(r.TsUTC))
	field("span_id", quote(r.SpanID))
	if r.EnvelopeID != nil {
		field("envelope_id", strconv.FormatInt(*r.EnvelopeID, 10))
	}
	if r.ContentHash != "" {
		field("envelope_sha256", quote(r.ContentHash))
	}
	if r.Message != "" {
		field("message", quote(r.Message))
	}

	sb.WriteByte('}')
	return sb.String()
}

// quote renders a JSON string escaping only backslash and double quote.
func quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' || c == '"' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(c)
	}
	sb.WriteByte('"')
	return sb.String()
}
