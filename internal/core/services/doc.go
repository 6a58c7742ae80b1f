// Package services contains the core engine: content hashing, canonical
// receipt encoding, the telemetry ledger, the ingestion pipeline, the
// cloud sync engine, and the background upload queue and scheduler.
// Services receive their dependencies through constructors; there is no
// global registry.
package services
