// Package sqlite provides the unified SQLite-backed store for envelopes,
// telemetry spans and receipts, and cloud bindings. Schema changes ship
// as embedded migrations applied on open.
package sqlite
