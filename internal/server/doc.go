// Package server exposes a read-only HTTP view of a loaded signal registry
// and the latest validation reports.
//
// Ownership boundary:
// - gin router and middleware wiring
// - registry browse endpoints
// - report endpoints
//
// Pipeline execution stays in package pipeline; the server never writes.
package server
