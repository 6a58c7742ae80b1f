// Package fsblob stores raw payload bytes on the local filesystem,
// content-addressed by SHA-256. Every write goes through a temp name,
// fsync, and an atomic rename, so a payload is never visible under its
// final name unless it is complete.
package fsblob
