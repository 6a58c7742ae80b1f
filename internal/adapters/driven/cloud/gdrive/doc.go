// Package gdrive implements the remote object store on Google Drive.
// Objects are tagged with their SHA-256 in appProperties so lookups and
// reconciliation can query by content rather than by name.
package gdrive
