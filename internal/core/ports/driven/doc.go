// Package driven defines the driven-side ports: interfaces the core
// services depend on and adapters implement (stores, the remote object
// store capability, the durable receipt sink, and schedulers).
package driven
