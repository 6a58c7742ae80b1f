// Package domain contains the core entities of the capture vault:
// envelopes (content-addressed captures), telemetry spans and receipts,
// and cloud bindings. It has no dependencies on adapters or services.
package domain
