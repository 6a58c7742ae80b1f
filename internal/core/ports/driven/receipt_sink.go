package driven

// ReceiptSink is the durable, day-partitioned audit log. Each receipt is
// one canonical-JSON line; the sink write path is independent of the
// receipt row insert, and a failure in either must not block the other.
type ReceiptSink interface {
	// WriteLine appends one canonical JSON line for the UTC day derived
	// from tsUTC. receiptHash feeds filename collision avoidance.
	WriteLine(tsUTC, receiptHash, line string) error
}
