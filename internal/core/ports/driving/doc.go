// Package driving defines the driving-side ports: the interfaces through
// which external actors (CLI commands, the watch adapter, the background
// scheduler) invoke the core.
package driving
